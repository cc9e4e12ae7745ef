package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/events"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/repository"
	"github.com/and161185/taskboard/internal/storage"
)

const maxTitleLen = 200

var colorRe = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ownProject loads a project and checks that userID owns it.
func ownProject(ctx context.Context, projects repository.ProjectRepository, userID, id int64) (*model.Project, error) {
	p, err := projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != userID {
		return nil, errs.ErrForbidden
	}
	return p, nil
}

// ownColumn resolves a column's project and checks that userID owns it.
func ownColumn(ctx context.Context, columns repository.ColumnRepository, userID, id int64) (repository.Scope, error) {
	return ownOne(ctx, columns.Scopes, userID, id)
}

// ownTask resolves a task's column and checks that userID owns it.
func ownTask(ctx context.Context, tasks repository.TaskRepository, userID, id int64) (repository.Scope, error) {
	return ownOne(ctx, tasks.Scopes, userID, id)
}

func ownOne(
	ctx context.Context, scopes func(context.Context, []int64) (map[int64]repository.Scope, error), userID, id int64,
) (repository.Scope, error) {
	if id <= 0 {
		return repository.Scope{}, fmt.Errorf("%w: bad id", errs.ErrValidation)
	}
	m, err := scopes(ctx, []int64{id})
	if err != nil {
		return repository.Scope{}, err
	}
	s, ok := m[id]
	if !ok {
		return repository.Scope{}, errs.ErrNotFound
	}
	if s.OwnerID != userID {
		return repository.Scope{}, errs.ErrForbidden
	}
	return s, nil
}

// cleanTitle trims and bounds a display title.
func cleanTitle(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxTitleLen {
		return "", fmt.Errorf("%w: %s must be 1..%d characters", errs.ErrValidation, field, maxTitleLen)
	}
	return v, nil
}

func checkColor(c string) error {
	if !colorRe.MatchString(c) {
		return fmt.Errorf("%w: color must be #rgb or #rrggbb", errs.ErrValidation)
	}
	return nil
}

func checkPriority(p int) error {
	if p < model.MinPriority || p > model.MaxPriority {
		return fmt.Errorf("%w: priority must be %d..%d", errs.ErrValidation, model.MinPriority, model.MaxPriority)
	}
	return nil
}

// removeBlobs deletes attachment bytes after their rows are gone; failures only leave orphans.
func removeBlobs(ctx context.Context, blobs storage.BlobStore, log *zap.Logger, keys []string) {
	for _, k := range keys {
		if err := blobs.Delete(ctx, k); err != nil {
			log.Warn("orphan attachment blob", zap.String("key", k), zap.Error(err))
		}
	}
}

// publish sends an activity event, logging instead of failing the request.
func publish(ctx context.Context, pub events.Publisher, log *zap.Logger, e events.Event) {
	if err := pub.Publish(ctx, e); err != nil {
		log.Warn("publish event", zap.String("type", e.Type), zap.Error(err))
	}
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

func orNopPublisher(p events.Publisher) events.Publisher {
	if p == nil {
		return events.Nop{}
	}
	return p
}
