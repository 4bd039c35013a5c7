// Package queue keeps the actions made while offline until they can be replayed against the school API.
package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/core"
)

const StorageKey = "offline_action_queue"

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("action not found")
)

type (
	Action struct {
		ID        string          `json:"id"`
		Type      string          `json:"type"`
		Method    string          `json:"method"`
		Endpoint  string          `json:"endpoint"`
		Payload   json.RawMessage `json:"payload,omitempty"`
		CreatedAt int64           `json:"createdAt"` // epoch ms
		Retries   int             `json:"retries"`
	}

	// NewAction contains information needed to queue an Action.
	NewAction struct {
		Type     string          `json:"type" validate:"notblank"`
		Method   string          `json:"method" validate:"omitempty,oneof=POST PUT PATCH DELETE"`
		Endpoint string          `json:"endpoint" validate:"notblank,startswith=/"`
		Payload  json.RawMessage `json:"payload"`
	}

	// Sender delivers one Action to the school API.
	Sender interface {
		Send(ctx context.Context, action Action) error
	}

	Queue struct {
		mu      sync.Mutex
		storage core.Storage
		logger  core.Logger
	}
)

func (na *NewAction) Validate() error {
	na.Type = core.CleanString(na.Type)
	na.Endpoint = core.CleanString(na.Endpoint)
	na.Method = strings.ToUpper(core.CleanString(na.Method))
	if na.Method == "" {
		na.Method = http.MethodPost
	}
	return core.Validate.Struct(na)
}

func New(storage core.Storage, logger core.Logger) *Queue {
	return &Queue{storage: storage, logger: logger}
}

// load never fails: unreadable or malformed queues are logged and read as empty.
func (q *Queue) load() []Action {
	data, ok, err := q.storage.GetItem(StorageKey)
	if err != nil {
		q.logger.Error("reading action queue", errors.Wrap(err, "get queue"))
		return nil
	}
	if !ok {
		return nil
	}
	var actions []Action
	if err := json.Unmarshal(data, &actions); err != nil {
		q.logger.Warn("discarding malformed action queue", errors.Wrap(err, "decode queue"))
		return nil
	}
	return actions
}

func (q *Queue) save(actions []Action) error {
	if len(actions) == 0 {
		return errors.Wrap(q.storage.RemoveItem(StorageKey), "remove queue")
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return errors.Wrap(err, "encode queue")
	}
	return errors.Wrap(q.storage.SetItem(StorageKey, data), "set queue")
}

// Enqueue validates and appends na.
func (q *Queue) Enqueue(na NewAction) (Action, error) {
	if err := na.Validate(); err != nil {
		return Action{}, err
	}
	act := Action{
		ID:        uuid.New().String(),
		Type:      na.Type,
		Method:    na.Method,
		Endpoint:  na.Endpoint,
		Payload:   na.Payload,
		CreatedAt: core.Millis(NowFunc()),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.save(append(q.load(), act)); err != nil {
		return Action{}, err
	}
	return act, nil
}

// List returns the queued actions, oldest first.
func (q *Queue) List() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func (q *Queue) Count() int {
	return len(q.List())
}

func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions := q.load()
	for i, act := range actions {
		if act.ID == id {
			return q.save(append(actions[:i], actions[i+1:]...))
		}
	}
	return ErrNotFound
}

func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.save(nil)
}

// Replay sends the queued actions in order, removing each one once delivered.
// The first failure stops the replay and bumps that action's retries.
// The queue is not locked while sending, so actions queued meanwhile are kept.
// Returns the number of actions sent.
func (q *Queue) Replay(ctx context.Context, sender Sender) (int, error) {
	sent := 0
	for _, act := range q.List() {
		if err := ctx.Err(); err != nil {
			return sent, errors.Wrap(err, "replaying actions")
		}
		if err := sender.Send(ctx, act); err != nil {
			q.bumpRetries(act.ID)
			return sent, errors.Wrapf(err, "replaying action %s", act.ID)
		}
		if err := q.Remove(act.ID); err != nil && err != ErrNotFound {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (q *Queue) bumpRetries(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions := q.load()
	for i := range actions {
		if actions[i].ID == id {
			actions[i].Retries++
			if err := q.save(actions); err != nil {
				q.logger.Error("saving action retries", err)
			}
			return
		}
	}
}
