// Package app assembles repositories and services into the set served over HTTP.
package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/and161185/taskboard/internal/events"
	"github.com/and161185/taskboard/internal/limiter"
	"github.com/and161185/taskboard/internal/repository"
	"github.com/and161185/taskboard/internal/repository/memory"
	"github.com/and161185/taskboard/internal/repository/postgres"
	"github.com/and161185/taskboard/internal/server/httpapi"
	"github.com/and161185/taskboard/internal/service"
	"github.com/and161185/taskboard/internal/storage"
)

// Repos is one backing store seen through the repository interfaces.
type Repos struct {
	Users       repository.UserRepository
	Projects    repository.ProjectRepository
	Columns     repository.ColumnRepository
	Tasks       repository.TaskRepository
	Attachments repository.AttachmentRepository
}

// PostgresRepos binds every repository to db.
func PostgresRepos(db *postgres.DB) Repos {
	return Repos{
		Users:       postgres.NewUserRepo(db),
		Projects:    postgres.NewProjectRepo(db),
		Columns:     postgres.NewColumnRepo(db),
		Tasks:       postgres.NewTaskRepo(db),
		Attachments: postgres.NewAttachmentRepo(db),
	}
}

// MemoryRepos binds every repository to an in-process store.
func MemoryRepos(st *memory.Store) Repos {
	return Repos{
		Users:       st.Users(),
		Projects:    st.Projects(),
		Columns:     st.Columns(),
		Tasks:       st.Tasks(),
		Attachments: st.Attachments(),
	}
}

// Deps are the collaborators shared by the services.
type Deps struct {
	SignKey   []byte
	AccessTTL time.Duration
	MaxBatch  int
	Limiter   limiter.Limiter   // nil disables login lockout
	Blobs     storage.BlobStore // required
	Publisher events.Publisher  // nil disables activity events
	Log       *zap.Logger
}

// Services builds the service set over r.
func Services(r Repos, d Deps) httpapi.Services {
	return httpapi.Services{
		Auth:        service.NewAuthService(r.Users, d.SignKey, d.AccessTTL, d.Limiter),
		Projects:    service.NewProjectService(r.Projects, r.Columns, r.Tasks, d.Blobs, d.Publisher, d.Log),
		Columns:     service.NewColumnService(r.Projects, r.Columns, d.Blobs, d.Log),
		Tasks:       service.NewTaskService(r.Columns, r.Tasks, d.Blobs, d.Publisher, d.Log),
		Reorder:     service.NewReorderService(r.Projects, r.Columns, r.Tasks, d.Publisher, d.Log, d.MaxBatch),
		Attachments: service.NewAttachmentService(r.Tasks, r.Attachments, d.Blobs, d.Log),
	}
}
