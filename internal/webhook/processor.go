// Package webhook implements the inbound event pipeline: signature
// verification, event interpretation, Kit subscription calls and the
// local subscriber upsert.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/webberzone/gluelink/internal/config"
	"github.com/webberzone/gluelink/internal/domain"
	"github.com/webberzone/gluelink/internal/kit"
	"github.com/webberzone/gluelink/internal/store"
)

// Recognized event types. Anything else is acknowledged as a no-op.
const (
	EventInstallInstalled = "install.installed"
	EventLicenseCreated   = "license.created"
)

// EmailAPI is the slice of the Kit client the processor drives.
type EmailAPI interface {
	SubscribeToForm(ctx context.Context, formID int64, email, firstName string, fields map[string]string, tags []int64) (kit.Response, error)
}

// SubscriberStore is the slice of the local store the processor writes.
type SubscriberStore interface {
	GetSubscriberByEmail(ctx context.Context, email string) (*domain.Subscriber, error)
	InsertSubscriber(ctx context.Context, sub *domain.Subscriber) (int64, error)
	UpdateSubscriber(ctx context.Context, sub *domain.Subscriber) error
}

// Defaults are the globally configured fallbacks applied when a product
// entry leaves a subscription target or field mapping unset.
type Defaults struct {
	FormID        string
	TagID         string
	LastNameField string
	CustomFields  []config.FieldMapping
}

// Result is the terminal outcome of one processed event. Failed marks a
// post-gate remote or local failure: details are logged, never echoed.
type Result struct {
	Handled bool
	Failed  bool
	Message string
}

// Result messages.
const (
	MessageSuccess         = "Webhook processed successfully"
	MessageProcessedErrors = "Processed with errors"
	MessageEventNotHandled = "Event type not handled"
)

// Processor validates, interprets and acts on one inbound event. The
// product snapshot is read-only for the processor's lifetime.
type Processor struct {
	products map[int64]domain.Product
	defaults Defaults
	api      EmailAPI
	store    SubscriberStore
	logger   *slog.Logger
}

func NewProcessor(products map[int64]domain.Product, defaults Defaults, api EmailAPI, subscribers SubscriberStore, logger *slog.Logger) *Processor {
	return &Processor{
		products: products,
		defaults: defaults,
		api:      api,
		store:    subscribers,
		logger:   logger,
	}
}

// Authorize runs the request gates: decode the body far enough to find
// the product, resolve its configuration and verify the signature over
// the exact raw bytes. A nil return means the request may be processed.
func (p *Processor) Authorize(body []byte, signature string) *Error {
	event, gateErr := parseEvent(body)
	if gateErr != nil {
		return gateErr
	}

	product, ok := p.products[event.PluginID]
	if !ok {
		return errInvalidPluginID()
	}
	if product.SecretKey == "" {
		// An entry without a secret cannot vouch for anything.
		return errInvalidPluginID()
	}

	if !verifySignature(body, product.SecretKey, signature) {
		return errInvalidSignature()
	}

	return nil
}

// Process interprets an authorized event and performs the remote
// subscriptions and the local upsert. The first remote error halts
// further Kit calls but the local write is still attempted; either
// failure yields a non-fatal "processed with errors" result.
func (p *Processor) Process(ctx context.Context, body []byte) (*Result, *Error) {
	event, gateErr := parseEvent(body)
	if gateErr != nil {
		return nil, gateErr
	}

	product, ok := p.products[event.PluginID]
	if !ok {
		return nil, errInvalidPluginID()
	}

	user := event.Objects.User
	if user == nil {
		return nil, errInvalidData("Missing user object")
	}
	if !domain.ValidEmail(user.Email) {
		return nil, errInvalidEmail()
	}
	if event.Type == "" {
		return nil, errInvalidEvent()
	}

	var formIDs, tagIDs []int64
	switch event.Type {
	case EventInstallInstalled:
		formIDs = resolveTargets(product.FreeFormIDs, p.defaults.FormID)
		tagIDs = resolveTargets(product.FreeTagIDs, p.defaults.TagID)
	case EventLicenseCreated:
		formIDs = resolveTargets(product.PaidFormIDs, p.defaults.FormID)
		tagIDs = resolveTargets(product.PaidTagIDs, p.defaults.TagID)
	default:
		return &Result{Handled: false, Message: MessageEventNotHandled}, nil
	}

	firstName := cleanName(user.First)
	lastName := cleanName(user.Last)
	fields := p.buildFields(lastName, user)

	var remoteErr error
	for _, formID := range formIDs {
		if _, err := p.api.SubscribeToForm(ctx, formID, user.Email, firstName, fields, tagIDs); err != nil {
			p.logger.Error("kit subscribe failed",
				"error", err,
				"plugin_id", event.PluginID,
				"form_id", formID,
			)
			remoteErr = err
			break
		}
	}

	localErr := p.upsert(ctx, user.Email, firstName, lastName, fields, tagIDs, formIDs)
	if localErr != nil {
		p.logger.Error("subscriber upsert failed",
			"error", localErr,
			"plugin_id", event.PluginID,
		)
	}

	if remoteErr != nil || localErr != nil {
		return &Result{Handled: true, Failed: true, Message: MessageProcessedErrors}, nil
	}
	return &Result{Handled: true, Message: MessageSuccess}, nil
}

// upsert reconciles the local store with the subscription outcome. When
// an insert loses a race to a concurrent writer the duplicate-email
// failure is retried as an update-merge.
func (p *Processor) upsert(ctx context.Context, email, firstName, lastName string, fields map[string]string, tags, forms []int64) error {
	sub, err := domain.NewSubscriber(email, firstName, lastName, fields, tags, forms)
	if err != nil {
		return err
	}

	existing, err := p.store.GetSubscriberByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		sub.ID = existing.ID
		return p.store.UpdateSubscriber(ctx, sub)
	}

	if _, err := p.store.InsertSubscriber(ctx, sub); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			raced, lookupErr := p.store.GetSubscriberByEmail(ctx, email)
			if lookupErr != nil {
				return lookupErr
			}
			if raced != nil {
				sub.ID = raced.ID
				return p.store.UpdateSubscriber(ctx, sub)
			}
		}
		return err
	}
	return nil
}

// buildFields maps the configured last-name field and custom-field
// mappings onto the user's properties. Unresolved local properties map to
// an empty value, never omitted.
func (p *Processor) buildFields(lastName string, user *domain.EventUser) map[string]string {
	fields := make(map[string]string)
	if p.defaults.LastNameField != "" {
		fields[p.defaults.LastNameField] = lastName
	}
	for _, mapping := range p.defaults.CustomFields {
		fields[mapping.RemoteName] = user.Prop(mapping.LocalName)
	}
	return fields
}

func parseEvent(body []byte) (*domain.Event, *Error) {
	var event domain.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, errInvalidRequest("Invalid request body")
	}
	if event.PluginID == 0 {
		return nil, errInvalidRequest("Missing plugin ID")
	}
	return &event, nil
}

// resolveTargets parses the per-product id list, falling back to the
// global default when the product leaves the value empty.
func resolveTargets(perProduct, fallback string) []int64 {
	raw := perProduct
	if strings.TrimSpace(raw) == "" {
		raw = fallback
	}
	return domain.ParseIDList(raw)
}

// The webhook source reports its own operator account as "Admin"; that
// placeholder is not a subscriber name.
func cleanName(name string) string {
	if strings.EqualFold(name, "Admin") {
		return ""
	}
	return name
}
