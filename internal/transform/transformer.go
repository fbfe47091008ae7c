package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agencydesk/catalyst-etl/internal/models"
)

var contactTypes = map[string]bool{
	"INDIVIDUAL": true,
	"BUSINESS":   true,
}

var contactStatuses = map[string]bool{
	"ACTIVE":   true,
	"INACTIVE": true,
	"PENDING":  true,
}

var policyStatuses = map[string]bool{
	"QUOTED":     true,
	"APPLIED":    true,
	"BOUND":      true,
	"ACTIVE":     true,
	"EXPIRED":    true,
	"TERMINATED": true,
}

type rawContact struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type rawPolicy struct {
	PolicyNumber   string `json:"policyNumber"`
	ContactID      string `json:"contactId"`
	Carrier        string `json:"carrier"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	EffectiveDate  string `json:"effectiveDate"`
	ExpirationDate string `json:"expirationDate"`
	Premium        any    `json:"premium"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// MapContact validates and maps one raw contact payload into its structured
// form.
func MapContact(sourceID string, data json.RawMessage) (models.Contact, error) {
	var raw rawContact
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Contact{}, fmt.Errorf("decode raw contact: %w", err)
	}

	email, err := ValidateEmail(raw.Email)
	if err != nil {
		return models.Contact{}, err
	}
	phone, err := ValidatePhone(raw.Phone)
	if err != nil {
		return models.Contact{}, err
	}
	zip, err := ValidateZipCode(raw.ZipCode)
	if err != nil {
		return models.Contact{}, err
	}
	state, err := ValidateState(raw.State)
	if err != nil {
		return models.Contact{}, err
	}
	contactType, err := ValidateStatus(raw.Type, contactTypes)
	if err != nil {
		return models.Contact{}, err
	}
	status, err := ValidateStatus(raw.Status, contactStatuses)
	if err != nil {
		return models.Contact{}, err
	}
	createdAt, err := ValidateDate(raw.CreatedAt)
	if err != nil {
		return models.Contact{}, err
	}
	updatedAt, err := ValidateDate(raw.UpdatedAt)
	if err != nil {
		return models.Contact{}, err
	}

	return models.Contact{
		SourceID:    sourceID,
		FirstName:   strPtr(CleanText(raw.FirstName)),
		LastName:    strPtr(CleanText(raw.LastName)),
		Email:       strPtr(email),
		Phone:       strPtr(phone),
		Address:     strPtr(CleanText(raw.Address)),
		City:        strPtr(CleanText(raw.City)),
		State:       strPtr(state),
		ZipCode:     strPtr(zip),
		ContactType: strPtr(contactType),
		Status:      strPtr(status),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// MapPolicy validates and maps one raw policy payload into its structured
// form.
func MapPolicy(sourceID string, data json.RawMessage) (models.Policy, error) {
	var raw rawPolicy
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Policy{}, fmt.Errorf("decode raw policy: %w", err)
	}

	policyNumber, err := ValidatePolicyNumber(raw.PolicyNumber)
	if err != nil {
		return models.Policy{}, err
	}
	contactID, err := ValidateUUID(raw.ContactID)
	if err != nil {
		return models.Policy{}, err
	}
	status, err := ValidateStatus(raw.Status, policyStatuses)
	if err != nil {
		return models.Policy{}, err
	}
	premium, err := ValidateCurrencyAmount(raw.Premium)
	if err != nil {
		return models.Policy{}, err
	}
	effectiveDate, err := ValidateDate(raw.EffectiveDate)
	if err != nil {
		return models.Policy{}, err
	}
	expirationDate, err := ValidateDate(raw.ExpirationDate)
	if err != nil {
		return models.Policy{}, err
	}
	createdAt, err := ValidateDate(raw.CreatedAt)
	if err != nil {
		return models.Policy{}, err
	}
	updatedAt, err := ValidateDate(raw.UpdatedAt)
	if err != nil {
		return models.Policy{}, err
	}

	return models.Policy{
		SourceID:       sourceID,
		PolicyNumber:   strPtr(policyNumber),
		ContactID:      strPtr(contactID),
		Carrier:        strPtr(CleanText(raw.Carrier)),
		PolicyType:     strPtr(CleanText(raw.Type)),
		Status:         strPtr(status),
		EffectiveDate:  effectiveDate,
		ExpirationDate: expirationDate,
		Premium:        premium,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RawSource reads and marks staged records during transformation.
type RawSource interface {
	PendingByBatch(ctx context.Context, table, batchID string, limit int) ([]models.RawRecord, error)
	UpdateStatus(ctx context.Context, table, sourceID string, status models.RawStatus, errorMessage string) error
}

// ProductionStore persists structured records.
type ProductionStore interface {
	UpsertContact(ctx context.Context, contact models.Contact) error
	UpsertPolicy(ctx context.Context, policy models.Policy) error
}

// fetchLimit bounds one pull of pending records per loop iteration.
const fetchLimit = 500

// Service turns pending raw records of a batch into structured rows, marking
// each raw record transformed, validation_error, or error as it goes.
type Service struct {
	raw    RawSource
	prod   ProductionStore
	logger *slog.Logger
}

// NewService creates a transformation service.
func NewService(raw RawSource, prod ProductionStore, logger *slog.Logger) *Service {
	return &Service{raw: raw, prod: prod, logger: logger}
}

// TransformContacts processes all pending raw contacts of a batch, returning
// how many transformed cleanly.
func (s *Service) TransformContacts(ctx context.Context, batchID string) (int, error) {
	return s.transform(ctx, "raw_contacts", batchID, func(ctx context.Context, rec models.RawRecord) error {
		contact, err := MapContact(rec.SourceID, rec.RawData)
		if err != nil {
			return err
		}
		return s.prod.UpsertContact(ctx, contact)
	})
}

// TransformPolicies processes all pending raw policies of a batch, returning
// how many transformed cleanly.
func (s *Service) TransformPolicies(ctx context.Context, batchID string) (int, error) {
	return s.transform(ctx, "raw_policies", batchID, func(ctx context.Context, rec models.RawRecord) error {
		policy, err := MapPolicy(rec.SourceID, rec.RawData)
		if err != nil {
			return err
		}
		return s.prod.UpsertPolicy(ctx, policy)
	})
}

func (s *Service) transform(ctx context.Context, table, batchID string, apply func(context.Context, models.RawRecord) error) (int, error) {
	transformed := 0

	for {
		pending, err := s.raw.PendingByBatch(ctx, table, batchID, fetchLimit)
		if err != nil {
			return transformed, err
		}
		if len(pending) == 0 {
			return transformed, nil
		}

		for _, rec := range pending {
			if err := ctx.Err(); err != nil {
				return transformed, err
			}

			err := apply(ctx, rec)
			if err == nil {
				if err := s.raw.UpdateStatus(ctx, table, rec.SourceID, models.RawStatusTransformed, ""); err != nil {
					return transformed, err
				}
				transformed++
				continue
			}

			status := models.RawStatusError
			var vErr *ValidationError
			if errors.As(err, &vErr) {
				status = models.RawStatusValidationError
			}

			s.logger.Error("record transformation failed",
				"table", table,
				"source_id", rec.SourceID,
				"status", string(status),
				"error", err)

			if err := s.raw.UpdateStatus(ctx, table, rec.SourceID, status, err.Error()); err != nil {
				return transformed, err
			}
		}
	}
}
