package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"testing"

	"github.com/webberzone/gluelink/internal/config"
	"github.com/webberzone/gluelink/internal/domain"
	"github.com/webberzone/gluelink/internal/kit"
	"github.com/webberzone/gluelink/internal/store"
)

type subscribeCall struct {
	FormID    int64
	Email     string
	FirstName string
	Fields    map[string]string
	Tags      []int64
}

type fakeAPI struct {
	calls  []subscribeCall
	failOn int // 1-based call number that fails; 0 = never
}

func (f *fakeAPI) SubscribeToForm(ctx context.Context, formID int64, email, firstName string, fields map[string]string, tags []int64) (kit.Response, error) {
	f.calls = append(f.calls, subscribeCall{
		FormID:    formID,
		Email:     email,
		FirstName: firstName,
		Fields:    fields,
		Tags:      tags,
	})
	if f.failOn > 0 && len(f.calls) >= f.failOn {
		return nil, &kit.APIError{Code: kit.ErrCodeAPI, StatusCode: 500, Message: "API request failed"}
	}
	return kit.Response{"subscription": map[string]any{"id": float64(1)}}, nil
}

// fakeStore keeps records in memory and mirrors the real store's
// update-merge and duplicate-email behavior.
type fakeStore struct {
	byEmail map[string]*domain.Subscriber
	nextID  int64
	inserts int
	updates int

	insertErr error // forced insert failure
	raceOnce  bool  // simulate losing the insert race to a concurrent writer
}

func newFakeStore() *fakeStore {
	return &fakeStore{byEmail: make(map[string]*domain.Subscriber), nextID: 1}
}

func (f *fakeStore) GetSubscriberByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	sub, ok := f.byEmail[email]
	if !ok {
		return nil, nil
	}
	clone := *sub
	return &clone, nil
}

func (f *fakeStore) InsertSubscriber(ctx context.Context, sub *domain.Subscriber) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	if f.raceOnce {
		// A concurrent writer inserted the same email between the lookup
		// and this insert.
		f.raceOnce = false
		raced := *sub
		raced.ID = f.nextID
		raced.Fields = map[string]string{}
		raced.Tags = nil
		raced.Forms = nil
		f.nextID++
		f.byEmail[sub.Email] = &raced
		return 0, store.ErrDuplicateEmail
	}
	if _, exists := f.byEmail[sub.Email]; exists {
		return 0, store.ErrDuplicateEmail
	}
	clone := *sub
	clone.ID = f.nextID
	f.nextID++
	f.byEmail[sub.Email] = &clone
	f.inserts++
	return clone.ID, nil
}

func (f *fakeStore) UpdateSubscriber(ctx context.Context, sub *domain.Subscriber) error {
	var existing *domain.Subscriber
	for _, candidate := range f.byEmail {
		if candidate.ID == sub.ID {
			existing = candidate
			break
		}
	}
	if existing == nil {
		return store.ErrNotFound
	}
	sub.Merge(existing)
	clone := *sub
	delete(f.byEmail, existing.Email)
	f.byEmail[sub.Email] = &clone
	f.updates++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testProducts() map[int64]domain.Product {
	return map[int64]domain.Product{
		42: {
			ID:          42,
			Slug:        "glue-plugin",
			SecretKey:   "s3cret",
			FreeFormIDs: "101,102",
			FreeTagIDs:  "301",
			PaidFormIDs: "201",
			PaidTagIDs:  "302",
		},
	}
}

func newTestProcessor(api *fakeAPI, subscribers *fakeStore, defaults Defaults) *Processor {
	return NewProcessor(testProducts(), defaults, api, subscribers, testLogger())
}

func signedBody(t *testing.T, secret string, payload any) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body, ComputeSignature(body, secret)
}

func installPayload(email string) map[string]any {
	return map[string]any{
		"plugin_id": 42,
		"type":      EventInstallInstalled,
		"objects": map[string]any{
			"user": map[string]any{
				"email": email,
				"first": "A",
				"last":  "B",
			},
		},
	}
}

func TestAuthorize_ValidSignature(t *testing.T) {
	p := newTestProcessor(&fakeAPI{}, newFakeStore(), Defaults{})
	body, sig := signedBody(t, "s3cret", installPayload("a@b.com"))

	if gateErr := p.Authorize(body, sig); gateErr != nil {
		t.Fatalf("Authorize = %v, want nil", gateErr)
	}
}

func TestAuthorize_GateFailures(t *testing.T) {
	api := &fakeAPI{}
	subscribers := newFakeStore()
	p := newTestProcessor(api, subscribers, Defaults{})

	validBody, _ := signedBody(t, "s3cret", installPayload("a@b.com"))
	wrongSig := ComputeSignature(validBody, "wrong")
	unknownPlugin, unknownSig := signedBody(t, "s3cret", map[string]any{"plugin_id": 99, "type": EventInstallInstalled})
	missingPlugin, _ := signedBody(t, "s3cret", map[string]any{"type": EventInstallInstalled})

	tests := []struct {
		name     string
		body     []byte
		sig      string
		wantCode string
	}{
		{"signature mismatch", validBody, wrongSig, CodeInvalidSignature},
		{"empty signature", validBody, "", CodeInvalidSignature},
		{"unknown plugin id", unknownPlugin, unknownSig, CodeInvalidPluginID},
		{"missing plugin id", missingPlugin, "", CodeInvalidRequest},
		{"malformed body", []byte("{not json"), "", CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateErr := p.Authorize(tt.body, tt.sig)
			if gateErr == nil {
				t.Fatal("Authorize = nil, want gate failure")
			}
			if gateErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", gateErr.Code, tt.wantCode)
			}
		})
	}

	// Gate failures must not produce side effects.
	if len(api.calls) != 0 {
		t.Errorf("api calls = %d, want 0", len(api.calls))
	}
	if len(subscribers.byEmail) != 0 {
		t.Errorf("stored records = %d, want 0", len(subscribers.byEmail))
	}
}

func TestProcess_InstallInstalled_SubscribesFreeForms(t *testing.T) {
	api := &fakeAPI{}
	subscribers := newFakeStore()
	p := newTestProcessor(api, subscribers, Defaults{LastNameField: "last_name"})

	body, _ := signedBody(t, "s3cret", installPayload("a@b.com"))

	result, gateErr := p.Process(context.Background(), body)
	if gateErr != nil {
		t.Fatalf("Process = %v", gateErr)
	}
	if !result.Handled || result.Failed {
		t.Fatalf("result = %+v, want handled success", result)
	}

	if len(api.calls) != 2 {
		t.Fatalf("api calls = %d, want one per free form id", len(api.calls))
	}
	for i, wantForm := range []int64{101, 102} {
		call := api.calls[i]
		if call.FormID != wantForm {
			t.Errorf("call %d form = %d, want %d", i, call.FormID, wantForm)
		}
		if call.Email != "a@b.com" || call.FirstName != "A" {
			t.Errorf("call %d = %+v", i, call)
		}
		if call.Fields["last_name"] != "B" {
			t.Errorf("call %d last name field = %q, want B", i, call.Fields["last_name"])
		}
		if !reflect.DeepEqual(call.Tags, []int64{301}) {
			t.Errorf("call %d tags = %v, want [301]", i, call.Tags)
		}
	}

	sub, _ := subscribers.GetSubscriberByEmail(context.Background(), "a@b.com")
	if sub == nil {
		t.Fatal("no record stored")
	}
	if !reflect.DeepEqual(sub.Forms, []int64{101, 102}) {
		t.Errorf("stored forms = %v, want [101 102]", sub.Forms)
	}
	if !reflect.DeepEqual(sub.Tags, []int64{301}) {
		t.Errorf("stored tags = %v, want [301]", sub.Tags)
	}
	if sub.FirstName != "A" || sub.LastName != "B" {
		t.Errorf("stored names = %q %q", sub.FirstName, sub.LastName)
	}
}

func TestProcess_LicenseCreated_UsesPaidTier(t *testing.T) {
	api := &fakeAPI{}
	p := newTestProcessor(api, newFakeStore(), Defaults{})

	payload := installPayload("a@b.com")
	payload["type"] = EventLicenseCreated
	body, _ := signedBody(t, "s3cret", payload)

	result, gateErr := p.Process(context.Background(), body)
	if gateErr != nil {
		t.Fatalf("Process = %v", gateErr)
	}
	if !result.Handled || result.Failed {
		t.Fatalf("result = %+v", result)
	}

	if len(api.calls) != 1 || api.calls[0].FormID != 201 {
		t.Fatalf("calls = %+v, want single paid form 201", api.calls)
	}
	if !reflect.DeepEqual(api.calls[0].Tags, []int64{302}) {
		t.Errorf("tags = %v, want [302]", api.calls[0].Tags)
	}
}

func TestProcess_UnhandledEventType_IsNoOp(t *testing.T) {
	api := &fakeAPI{}
	subscribers := newFakeStore()
	p := newTestProcessor(api, subscribers, Defaults{})

	payload := installPayload("a@b.com")
	payload["type"] = "subscription.cancelled"
	body, _ := signedBody(t, "s3cret", payload)

	result, gateErr := p.Process(context.Background(), body)
	if gateErr != nil {
		t.Fatalf("Process = %v", gateErr)
	}
	if result.Handled {
		t.Error("result.Handled = true, want no-op")
	}
	if result.Message != MessageEventNotHandled {
		t.Errorf("message = %q", result.Message)
	}
	if len(api.calls) != 0 || len(subscribers.byEmail) != 0 {
		t.Error("no-op event must produce zero side effects")
	}
}

func TestProcess_PayloadGateFailures(t *testing.T) {
	tests := []struct {
		name     string
		payload  map[string]any
		wantCode string
	}{
		{
			name:     "missing user object",
			payload:  map[string]any{"plugin_id": 42, "type": EventInstallInstalled, "objects": map[string]any{}},
			wantCode: CodeInvalidData,
		},
		{
			name:     "invalid email",
			payload:  installPayload("not-an-email"),
			wantCode: CodeInvalidEmail,
		},
		{
			name: "missing event type",
			payload: map[string]any{
				"plugin_id": 42,
				"objects":   map[string]any{"user": map[string]any{"email": "a@b.com"}},
			},
			wantCode: CodeInvalidEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			subscribers := newFakeStore()
			p := newTestProcessor(api, subscribers, Defaults{})

			body, _ := signedBody(t, "s3cret", tt.payload)
			_, gateErr := p.Process(context.Background(), body)
			if gateErr == nil {
				t.Fatal("Process = nil error, want gate failure")
			}
			if gateErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", gateErr.Code, tt.wantCode)
			}
			if len(api.calls) != 0 || len(subscribers.byEmail) != 0 {
				t.Error("gate failure must produce zero side effects")
			}
		})
	}
}

func TestProcess_ReplayMergesInsteadOfDuplicating(t *testing.T) {
	api := &fakeAPI{}
	subscribers := newFakeStore()
	p := newTestProcessor(api, subscribers, Defaults{})

	free, _ := signedBody(t, "s3cret", installPayload("a@b.com"))
	paidPayload := installPayload("a@b.com")
	paidPayload["type"] = EventLicenseCreated
	paid, _ := signedBody(t, "s3cret", paidPayload)

	for _, body := range [][]byte{free, free, paid} {
		result, gateErr := p.Process(context.Background(), body)
		if gateErr != nil || result.Failed {
			t.Fatalf("Process = %+v, %v", result, gateErr)
		}
	}

	if len(subscribers.byEmail) != 1 {
		t.Fatalf("records = %d, want exactly one", len(subscribers.byEmail))
	}
	if subscribers.inserts != 1 || subscribers.updates != 2 {
		t.Errorf("inserts = %d updates = %d, want 1 and 2", subscribers.inserts, subscribers.updates)
	}

	sub, _ := subscribers.GetSubscriberByEmail(context.Background(), "a@b.com")
	if !reflect.DeepEqual(sub.Forms, []int64{101, 102, 201}) {
		t.Errorf("forms = %v, want union of both tiers", sub.Forms)
	}
	if !reflect.DeepEqual(sub.Tags, []int64{301, 302}) {
		t.Errorf("tags = %v, want union of both tiers", sub.Tags)
	}
}

func TestProcess_RemoteFailureStillUpserts(t *testing.T) {
	api := &fakeAPI{failOn: 1}
	subscribers := newFakeStore()
	p := newTestProcessor(api, subscribers, Defaults{})

	body, _ := signedBody(t, "s3cret", installPayload("a@b.com"))

	result, gateErr := p.Process(context.Background(), body)
	if gateErr != nil {
		t.Fatalf("Process = %v", gateErr)
	}
	if !result.Failed {
		t.Error("result.Failed = false, want processed-with-errors")
	}
	if result.Message != MessageProcessedErrors {
		t.Errorf("message = %q", result.Message)
	}

	// The first error halts further remote calls.
	if len(api.calls) != 1 {
		t.Errorf("api calls = %d, want 1", len(api.calls))
	}
	// Local persistence is still attempted.
	if len(subscribers.byEmail) != 1 {
		t.Errorf("records = %d, want 1", len(subscribers.byEmail))
	}
}

func TestProcess_LocalFailureReportsErrors(t *testing.T) {
	api := &fakeAPI{}
	subscribers := newFakeStore()
	subscribers.insertErr = fmt.Errorf("inserting subscriber: connection refused")
	p := newTestProcessor(api, subscribers, Defaults{})

	body, _ := signedBody(t, "s3cret", installPayload("a@b.com"))

	result, gateErr := p.Process(context.Background(), body)
	if gateErr != nil {
		t.Fatalf("Process = %v", gateErr)
	}
	if !result.Failed {
		t.Error("result.Failed = false, want processed-with-errors")
	}
	// Remote calls are not re-invoked or rolled back.
	if len(api.calls) != 2 {
		t.Errorf("api calls = %d, want 2", len(api.calls))
	}
}

func TestProcess_InsertRaceRetriedAsUpdate(t *testing.T) {
	api := &fakeAPI{}
	subscribers := newFakeStore()
	subscribers.raceOnce = true
	p := newTestProcessor(api, subscribers, Defaults{})

	body, _ := signedBody(t, "s3cret", installPayload("a@b.com"))

	result, gateErr := p.Process(context.Background(), body)
	if gateErr != nil {
		t.Fatalf("Process = %v", gateErr)
	}
	if result.Failed {
		t.Error("insert race must be recovered, not reported as failure")
	}
	if subscribers.updates != 1 {
		t.Errorf("updates = %d, want the raced insert retried as update", subscribers.updates)
	}

	sub, _ := subscribers.GetSubscriberByEmail(context.Background(), "a@b.com")
	if !reflect.DeepEqual(sub.Forms, []int64{101, 102}) {
		t.Errorf("forms = %v after race recovery", sub.Forms)
	}
}

func TestProcess_EmptyProductTargetsFallBackToDefaults(t *testing.T) {
	api := &fakeAPI{}
	products := map[int64]domain.Product{
		42: {ID: 42, SecretKey: "s3cret"},
	}
	p := NewProcessor(products, Defaults{FormID: "555", TagID: "666"}, api, newFakeStore(), testLogger())

	body, _ := signedBody(t, "s3cret", installPayload("a@b.com"))

	result, gateErr := p.Process(context.Background(), body)
	if gateErr != nil || result.Failed {
		t.Fatalf("Process = %+v, %v", result, gateErr)
	}

	if len(api.calls) != 1 || api.calls[0].FormID != 555 {
		t.Fatalf("calls = %+v, want global default form 555", api.calls)
	}
	if !reflect.DeepEqual(api.calls[0].Tags, []int64{666}) {
		t.Errorf("tags = %v, want global default tag 666", api.calls[0].Tags)
	}
}

func TestProcess_CustomFieldMapping(t *testing.T) {
	api := &fakeAPI{}
	defaults := Defaults{
		LastNameField: "last_name",
		CustomFields: []config.FieldMapping{
			{LocalName: "company", RemoteName: "company_name"},
			{LocalName: "not_in_payload", RemoteName: "missing_field"},
		},
	}
	p := newTestProcessor(api, newFakeStore(), defaults)

	payload := installPayload("a@b.com")
	payload["objects"].(map[string]any)["user"].(map[string]any)["company"] = "Acme"
	body, _ := signedBody(t, "s3cret", payload)

	if _, gateErr := p.Process(context.Background(), body); gateErr != nil {
		t.Fatalf("Process = %v", gateErr)
	}

	fields := api.calls[0].Fields
	if fields["company_name"] != "Acme" {
		t.Errorf(`fields["company_name"] = %q, want "Acme"`, fields["company_name"])
	}
	// Unresolved local properties map to empty, never omitted.
	if value, ok := fields["missing_field"]; !ok || value != "" {
		t.Errorf(`fields["missing_field"] = %q (present=%v), want empty string`, value, ok)
	}
}

func TestProcess_AdminPlaceholderNamesBlanked(t *testing.T) {
	api := &fakeAPI{}
	subscribers := newFakeStore()
	p := newTestProcessor(api, subscribers, Defaults{})

	payload := installPayload("a@b.com")
	payload["objects"].(map[string]any)["user"].(map[string]any)["first"] = "Admin"
	payload["objects"].(map[string]any)["user"].(map[string]any)["last"] = "admin"
	body, _ := signedBody(t, "s3cret", payload)

	if _, gateErr := p.Process(context.Background(), body); gateErr != nil {
		t.Fatalf("Process = %v", gateErr)
	}

	if api.calls[0].FirstName != "" {
		t.Errorf("first name = %q, want blanked placeholder", api.calls[0].FirstName)
	}
	sub, _ := subscribers.GetSubscriberByEmail(context.Background(), "a@b.com")
	if sub.FirstName != "" || sub.LastName != "" {
		t.Errorf("stored names = %q %q, want blanked", sub.FirstName, sub.LastName)
	}
}
