// Package actioncodes issues short-lived single-use confirmation codes that
// gate destructive admin actions such as order cancellation.
package actioncodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
	"github.com/angelmondragon/fulfillment-backend/pkg/security"
)

// Action names the operation a code confirms.
type Action string

const ActionOrderCancel Action = "order_cancel"

const ReasonInvalidCode = "invalid_action_code"

// Service issues and consumes action codes.
type Service interface {
	Issue(ctx context.Context, action Action, subjectID uuid.UUID, actor auth.Actor) (*IssuedCode, error)
	Consume(ctx context.Context, action Action, subjectID uuid.UUID, code string, actor auth.Actor) error
}

// IssuedCode is returned once to the admin who requested it.
type IssuedCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type storedCode struct {
	Hash     string    `json:"hash"`
	IssuedBy uuid.UUID `json:"issued_by"`
}

type service struct {
	store redis.ActionCodeStore
	cfg   config.ActionCodesConfig
	hash  config.HashConfig
	logg  *logger.Logger
	now   func() time.Time
}

func NewService(store redis.ActionCodeStore, cfg config.ActionCodesConfig, hash config.HashConfig, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("action code store required")
	}
	if cfg.CodeLength <= 0 || cfg.TTL <= 0 {
		return nil, fmt.Errorf("action code length and ttl must be positive")
	}
	return &service{store: store, cfg: cfg, hash: hash, logg: logg, now: time.Now}, nil
}

// Issue replaces any outstanding code for the action and subject.
func (s *service) Issue(ctx context.Context, action Action, subjectID uuid.UUID, actor auth.Actor) (*IssuedCode, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if action == "" || subjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "action and subject required")
	}

	code, err := security.GenerateNumericCode(s.cfg.CodeLength)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate action code")
	}
	hashed, err := security.HashCode(code, s.hash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash action code")
	}
	value, err := json.Marshal(storedCode{Hash: hashed, IssuedBy: actor.UserID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode action code")
	}
	key := s.store.ActionCodeKey(string(action), subjectID.String())
	if err := s.store.Set(ctx, key, string(value), s.cfg.TTL); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store action code")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"action":     string(action),
		"subject_id": subjectID.String(),
	}), "action_code.issued")
	return &IssuedCode{Code: code, ExpiresAt: s.now().UTC().Add(s.cfg.TTL)}, nil
}

// Consume removes the stored code before checking it, so a code is usable at
// most once whether or not the attempt matches.
func (s *service) Consume(ctx context.Context, action Action, subjectID uuid.UUID, code string, actor auth.Actor) error {
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !security.IsNumericCode(code, s.cfg.CodeLength) {
		return invalidCode()
	}

	key := s.store.ActionCodeKey(string(action), subjectID.String())
	raw, err := s.store.GetDel(ctx, key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return invalidCode()
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load action code")
	}

	var stored storedCode
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode action code")
	}
	if stored.IssuedBy != actor.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "action code was issued to another admin")
	}
	ok, err := security.VerifyCode(code, stored.Hash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify action code")
	}
	if !ok {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"action":     string(action),
			"subject_id": subjectID.String(),
		}), "action_code.mismatch")
		return invalidCode()
	}
	return nil
}

func invalidCode() error {
	return pkgerrors.Reason(pkgerrors.CodeValidation, ReasonInvalidCode, "action code is invalid or expired")
}
