package mockapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"taskboard/domain"
)

const edmInt64 = "Edm.Int64"

// taskEntity is the table row for a task. Timestamps are stored as Unix
// nanoseconds.
type taskEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	Description   string `json:"Description"`
	Completed     bool   `json:"Completed"`
	DueDate       *int64 `json:"DueDate,omitempty,string"`
	DueDateType   string `json:"DueDate@odata.type,omitempty"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

func newTaskEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		PartitionKey:  t.UserID,
		RowKey:        t.ID,
		Description:   t.Description,
		Completed:     t.Completed,
		CreatedAt:     t.CreatedAt.UnixNano(),
		CreatedAtType: edmInt64,
		UpdatedAt:     t.UpdatedAt.UnixNano(),
		UpdatedAtType: edmInt64,
	}
	if t.DueDate != nil {
		due := t.DueDate.UnixNano()
		ent.DueDate = &due
		ent.DueDateType = edmInt64
	}
	return ent
}

func (e taskEntity) task() domain.Task {
	t := domain.Task{
		ID:          e.RowKey,
		UserID:      e.PartitionKey,
		Description: e.Description,
		Completed:   e.Completed,
		CreatedAt:   domain.NewTimestamp(time.Unix(0, e.CreatedAt)),
		UpdatedAt:   domain.NewTimestamp(time.Unix(0, e.UpdatedAt)),
	}
	if e.DueDate != nil {
		due := domain.NewTimestamp(time.Unix(0, *e.DueDate))
		t.DueDate = &due
	}
	return t
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.ConfigStd.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.task(), nil
}

// TableStorage keeps tasks in an Azure table partitioned by user.
type TableStorage struct {
	table *aztables.Client
}

// NewTableStorage connects to the named table.
func NewTableStorage(connStr, tableName string) (*TableStorage, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, err
	}
	return &TableStorage{table: svc.NewClient(tableName)}, nil
}

// EnsureTable creates the table unless it already exists.
func (s *TableStorage) EnsureTable(ctx context.Context) error {
	_, err := s.table.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return err
		}
	}
	return nil
}

func (s *TableStorage) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(userID, "'", "''") + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (s *TableStorage) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	ent, err := s.table.GetEntity(ctx, userID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Task{}, ErrTaskNotFound
		}
		return domain.Task{}, err
	}
	return decodeTaskEntity(ent.Value)
}

func (s *TableStorage) PutTask(ctx context.Context, task domain.Task) error {
	payload, err := sonic.ConfigStd.Marshal(newTaskEntity(task))
	if err == nil {
		_, err = s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	}
	return err
}

func (s *TableStorage) DeleteTask(ctx context.Context, userID, taskID string) error {
	et := azcore.ETagAny
	_, err := s.table.DeleteEntity(ctx, userID, taskID, &aztables.DeleteEntityOptions{IfMatch: &et})
	if isNotFound(err) {
		return ErrTaskNotFound
	}
	return err
}

func (s *TableStorage) Ping(ctx context.Context) error {
	top := int32(1)
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: &top})
	_, err := pager.NextPage(ctx)
	return err
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
