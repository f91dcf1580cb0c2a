package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Source --dir ../domain/subscriber --output domain/subscriber --outpkg subscribermock --filename source_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/jobscheduler --output domain/jobscheduler --outpkg jobschedulermock --filename repository_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Reader --dir ../domain/leaderboard --output domain/leaderboard --outpkg leaderboardmock --filename reader_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name JobQueue --dir ../usecase --output usecase --outpkg usecasemock --filename job_queue_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name EmailSender --dir ../usecase --output usecase --outpkg usecasemock --filename email_sender_mock.go
