package mockapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const maxBodySize = 64 * 1024

// sonicSerializer makes echo encode and decode JSON with sonic.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	err := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize)).Decode(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	return nil
}

// rawBody is a JSON object body with its fields left undecoded so handlers
// can tell an absent key from an explicit null.
type rawBody map[string]sonic.NoCopyRawMessage

var errEmptyBody = errors.New("empty body")

// readBody decodes the request body as a JSON object.
func readBody(c echo.Context) (rawBody, error) {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errEmptyBody
	}
	body := rawBody{}
	if err := sonic.ConfigStd.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("body must be an object")
	}
	return body, nil
}

func (b rawBody) has(key string) bool {
	_, ok := b[key]
	return ok
}

func (b rawBody) isNull(key string) bool {
	return strings.TrimSpace(string(b[key])) == "null"
}

func (b rawBody) decode(key string, dst any) error {
	return sonic.ConfigStd.Unmarshal(b[key], dst)
}
