package services

import (
	"context"
	"errors"
	"strings"

	"github.com/textforce/backend/internal/events"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/retry"
	"go.uber.org/zap"
)

var ErrInvalidCell = errors.New("invalid cell number")

// OptOutService records organization-wide opt-outs and flags the matching
// contacts so the eligibility engine stops offering them.
type OptOutService struct {
	contacts  ContactStore
	auditRepo AuditLogger
	publisher events.Publisher
	store     storage
	log       *zap.Logger
}

func NewOptOutService(contacts ContactStore, auditRepo AuditLogger, publisher events.Publisher, backoff *retry.Backoff, log *zap.Logger) *OptOutService {
	return &OptOutService{
		contacts:  contacts,
		auditRepo: auditRepo,
		publisher: publisher,
		store:     newStorage(backoff, log),
		log:       log,
	}
}

// Record stores an opt-out for cell and returns how many contacts changed.
func (s *OptOutService) Record(ctx context.Context, actor models.Requester, cell string) (int64, error) {
	cell = NormalizeCell(cell)
	if cell == "" {
		return 0, ErrInvalidCell
	}

	var changed int64
	err := s.store.do(ctx, "mark opted out", func(ctx context.Context) error {
		var err error
		changed, err = s.contacts.MarkOptedOut(ctx, actor.OrganizationID, cell)
		return err
	})
	if err != nil {
		return 0, err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &actor.UserID,
		ActorType:   actor.ActorType(),
		Action:      "opt_out_recorded",
		EntityType:  "organization",
		EntityID:    actor.OrganizationID,
		Meta:        map[string]any{"contacts_changed": changed},
	})

	if changed > 0 {
		_ = s.publisher.Publish(ctx, events.StreamCampaign, events.Event{
			Type:           events.EventContactsOptedOut,
			OrganizationID: actor.OrganizationID,
			Payload:        map[string]any{"contacts_changed": changed},
		})
	}

	s.log.Info("opt-out recorded", zap.Int64("organization_id", actor.OrganizationID), zap.Int64("contacts_changed", changed))
	return changed, nil
}

// NormalizeCell returns cell in E.164 form. Ten digits without a plus are a
// NANP number and get +1, eleven digits starting with 1 get a plus. It
// returns "" when fewer than 7 or more than 15 digits remain.
func NormalizeCell(cell string) string {
	cell = strings.TrimSpace(cell)
	plus := strings.HasPrefix(cell, "+")
	var digits strings.Builder
	for _, r := range cell {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 7 || len(d) > 15 {
		return ""
	}
	if !plus && len(d) == 10 {
		return "+1" + d
	}
	return "+" + d
}
