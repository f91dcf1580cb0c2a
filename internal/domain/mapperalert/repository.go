package mapperalert

import "context"

// Repository exposes mapper alert persistence needed by the pipeline.
type Repository interface {
	GetByUser(ctx context.Context, userID string) (MapperAlert, bool, error)
	ListAlertMaps(ctx context.Context, alertID int64) ([]AlertMap, error)
	UpdateAlertType(ctx context.Context, alertID int64, alertType AlertType) error
}
