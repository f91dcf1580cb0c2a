package memory

import (
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/drivernotification"
	"github.com/riskibarqy/tm-alerts/internal/domain/mapperalert"
	"github.com/riskibarqy/tm-alerts/internal/domain/subscriber"
)

const (
	DemoUserMapper = "demo-mapper"
	DemoUserDriver = "demo-driver"
)

// Dataset is the demo content used by memory storage and the dev bootstrap.
type Dataset struct {
	Users               []subscriber.Subscriber
	MapperAlerts        []mapperalert.MapperAlert
	AlertMaps           []mapperalert.AlertMap
	DriverNotifications []drivernotification.DriverNotification
}

func SeedDemo() Dataset {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Dataset{
		Users: []subscriber.Subscriber{
			{UserID: DemoUserMapper, Username: "MapperDemo", Email: "mapper@example.com"},
			{UserID: DemoUserDriver, Username: "DriverDemo", Email: "driver@example.com"},
		},
		MapperAlerts: []mapperalert.MapperAlert{
			{
				ID:                 1,
				UserID:             DemoUserMapper,
				TrackmaniaUsername: "MapperDemo",
				Email:              "mapper@example.com",
				AlertType:          mapperalert.AlertTypeAccurate,
				RecordFilter:       mapperalert.RecordFilterAll,
				MapCount:           2,
				CreatedAt:          created,
				UpdatedAt:          created,
			},
		},
		AlertMaps: []mapperalert.AlertMap{
			{AlertID: 1, MapUID: "demoMapUid0000000000000001", MapName: "Demo Sprint"},
			{AlertID: 1, MapUID: "demoMapUid0000000000000002", MapName: "Demo Tech"},
		},
		DriverNotifications: []drivernotification.DriverNotification{
			{
				ID:                  1,
				UserID:              DemoUserDriver,
				MapUID:              "demoMapUid0000000000000001",
				MapName:             "Demo Sprint",
				TrackmaniaAccountID: "00000000-0000-0000-0000-000000000001",
				CurrentPosition:     3,
				PersonalBestScore:   45210,
				Status:              drivernotification.StatusActive,
				CreatedAt:           created,
			},
		},
	}
}
