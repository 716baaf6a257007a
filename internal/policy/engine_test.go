package policy

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	logrtesting "github.com/go-logr/logr/testing"
	"github.com/google/go-cmp/cmp"

	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/dns"
)

// fakeDirectory records directory calls for test assertions.
type fakeDirectory struct {
	mu       sync.Mutex
	sites    []dns.Site
	policies map[string][]dns.Policy // by site id

	sitesErr, policiesErr, mutateErr error

	calls   []string
	created []dns.Policy
	updated []dns.Policy
	deleted []string
}

func (f *fakeDirectory) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeDirectory) ListSites(context.Context) ([]dns.Site, error) {
	f.record("listSites")
	return f.sites, f.sitesErr
}

func (f *fakeDirectory) ListPolicies(_ context.Context, siteID string) ([]dns.Policy, error) {
	f.record("listPolicies " + siteID)
	return f.policies[siteID], f.policiesErr
}

func (f *fakeDirectory) CreatePolicy(_ context.Context, siteID string, p dns.Policy) (dns.Policy, error) {
	f.record("createPolicy " + siteID)
	if f.mutateErr != nil {
		return dns.Policy{}, f.mutateErr
	}
	f.created = append(f.created, p)
	p.ID = "new-id"
	return p, nil
}

func (f *fakeDirectory) UpdatePolicy(_ context.Context, siteID, id string, p dns.Policy) (dns.Policy, error) {
	f.record("updatePolicy " + siteID + " " + id)
	if f.mutateErr != nil {
		return dns.Policy{}, f.mutateErr
	}
	f.updated = append(f.updated, p)
	return p, nil
}

func (f *fakeDirectory) DeletePolicy(_ context.Context, siteID, id string) (bool, error) {
	f.record("deletePolicy " + siteID + " " + id)
	if f.mutateErr != nil {
		return false, f.mutateErr
	}
	f.deleted = append(f.deleted, id)
	return true, nil
}

func (f *fakeDirectory) mutations() int {
	return len(f.created) + len(f.updated) + len(f.deleted)
}

func newFake(existing ...dns.Policy) *fakeDirectory {
	return &fakeDirectory{
		sites:    []dns.Site{{ID: "s-office", Name: "Office"}, {ID: "s-default", Name: "default"}},
		policies: map[string][]dns.Policy{"s-default": existing},
	}
}

func desiredA() dns.DesiredPolicy {
	d := dns.NewDesiredPolicy("a.example.com")
	d.Type = dns.TypeA
	d.IPv4Address = dns.StringPtr("10.0.0.1")
	return d
}

func remoteA(id string) dns.Policy {
	return dns.Policy{
		ID:          id,
		Type:        dns.TypeA,
		Domain:      "a.example.com",
		IPv4Address: dns.StringPtr("10.0.0.1"),
		TTLSeconds:  3600,
		Enabled:     true,
	}
}

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

var modes = []Mode{ModeApply, ModeCheck}

func TestReconcile_PresentCreates(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			dir := newFake()
			out, err := NewEngine(dir, logrtesting.NewTestLogger(t)).Reconcile(context.Background(), "default", desiredA(), mode)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			want := &Outcome{
				Changed: true,
				Message: "DNS policy for domain a.example.com created",
				Policy: Record{
					Domain:      "a.example.com",
					Type:        dns.TypeA,
					IPv4Address: dns.StringPtr("10.0.0.1"),
					TTLSeconds:  intPtr(3600),
					Enabled:     boolPtr(true),
					State:       dns.StatePresent,
				},
			}
			if diff := cmp.Diff(want, out); diff != "" {
				t.Errorf("unexpected outcome (-want +got):\n%s", diff)
			}

			if mode == ModeCheck {
				if dir.mutations() != 0 {
					t.Errorf("expected no mutations in check mode, got calls %v", dir.calls)
				}
				return
			}
			if len(dir.created) != 1 {
				t.Fatalf("expected 1 create, got %d", len(dir.created))
			}
			if diff := cmp.Diff(desiredA().Policy, dir.created[0]); diff != "" {
				t.Errorf("unexpected created policy (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReconcile_PresentUnchanged(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			dir := newFake(remoteA("p1"))
			out, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "default", desiredA(), mode)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Changed {
				t.Error("expected changed=false")
			}
			if out.Message != "DNS policy for domain a.example.com already exists with correct configuration" {
				t.Errorf("unexpected message %q", out.Message)
			}
			if dir.mutations() != 0 {
				t.Errorf("expected no mutations, got calls %v", dir.calls)
			}
		})
	}
}

func TestReconcile_PresentUpdates(t *testing.T) {
	tests := map[string]func(p *dns.Policy){
		"ttl":     func(p *dns.Policy) { p.TTLSeconds = 300 },
		"address": func(p *dns.Policy) { p.IPv4Address = dns.StringPtr("10.0.0.9") },
		"type":    func(p *dns.Policy) { p.Type = dns.TypeCNAME },
		"enabled": func(p *dns.Policy) { p.Enabled = false },
	}

	for name, mutate := range tests {
		for _, mode := range modes {
			t.Run(name+"/"+mode.String(), func(t *testing.T) {
				remote := remoteA("p1")
				mutate(&remote)
				dir := newFake(remote)

				out, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "default", desiredA(), mode)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !out.Changed {
					t.Error("expected changed=true")
				}
				if out.Message != "DNS policy for domain a.example.com updated" {
					t.Errorf("unexpected message %q", out.Message)
				}
				if *out.Policy.TTLSeconds != 3600 {
					t.Errorf("expected desired ttl reported, got %d", *out.Policy.TTLSeconds)
				}

				if mode == ModeCheck {
					if dir.mutations() != 0 {
						t.Errorf("expected no mutations in check mode, got calls %v", dir.calls)
					}
					return
				}
				if len(dir.updated) != 1 {
					t.Fatalf("expected 1 update, got %d", len(dir.updated))
				}
				want := remoteA("p1")
				if diff := cmp.Diff(want, dir.updated[0]); diff != "" {
					t.Errorf("unexpected update payload (-want +got):\n%s", diff)
				}
				if dir.calls[len(dir.calls)-1] != "updatePolicy s-default p1" {
					t.Errorf("expected update of p1, got calls %v", dir.calls)
				}
			})
		}
	}
}

func TestReconcile_AbsentDeletes(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			dir := newFake(remoteA("p1"))
			desired := dns.NewDesiredPolicy("a.example.com")
			desired.State = dns.StateAbsent

			out, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "default", desired, mode)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			want := &Outcome{
				Changed: true,
				Message: "DNS policy for domain a.example.com deleted",
				Policy:  Record{Domain: "a.example.com", State: dns.StateAbsent},
			}
			if diff := cmp.Diff(want, out); diff != "" {
				t.Errorf("unexpected outcome (-want +got):\n%s", diff)
			}

			wantDeleted := []string{"p1"}
			if mode == ModeCheck {
				wantDeleted = nil
			}
			if diff := cmp.Diff(wantDeleted, dir.deleted); diff != "" {
				t.Errorf("unexpected deletes (-want +got):\n%s", diff)
			}
			if len(dir.created)+len(dir.updated) != 0 {
				t.Errorf("unexpected mutations: %v", dir.calls)
			}
		})
	}
}

func TestReconcile_AbsentMissing(t *testing.T) {
	dir := newFake(dns.Policy{ID: "p2", Domain: "b.example.com"})
	desired := dns.NewDesiredPolicy("a.example.com")
	desired.State = dns.StateAbsent

	out, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "default", desired, ModeApply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Changed {
		t.Error("expected changed=false")
	}
	if out.Message != "DNS policy for domain a.example.com does not exist" {
		t.Errorf("unexpected message %q", out.Message)
	}
	if diff := cmp.Diff(Record{Domain: "a.example.com", State: dns.StateAbsent}, out.Policy); diff != "" {
		t.Errorf("unexpected tombstone (-want +got):\n%s", diff)
	}
	if dir.mutations() != 0 {
		t.Errorf("expected no mutations, got calls %v", dir.calls)
	}
}

func TestReconcile_AbsentWithoutID(t *testing.T) {
	remote := remoteA("")
	dir := newFake(remote)
	desired := dns.NewDesiredPolicy("a.example.com")
	desired.State = dns.StateAbsent

	out, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "default", desired, ModeApply)
	var inconsistent *InconsistentStateError
	if !errors.As(err, &inconsistent) {
		t.Fatalf("expected InconsistentStateError, got %v", err)
	}
	if out != nil {
		t.Errorf("expected no outcome on error, got %+v", out)
	}
	if dir.mutations() != 0 {
		t.Errorf("expected no mutations, got calls %v", dir.calls)
	}
}

func TestReconcile_SiteCaseInsensitive(t *testing.T) {
	dir := newFake(remoteA("p1"))
	if _, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "Default", desiredA(), ModeApply); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir.calls[1] != "listPolicies s-default" {
		t.Errorf("expected policies of s-default to be listed, got calls %v", dir.calls)
	}
}

func TestReconcile_DomainCaseSensitive(t *testing.T) {
	remote := remoteA("p1")
	remote.Domain = "A.example.com"
	dir := newFake(remote)

	out, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "default", desiredA(), ModeApply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Message != "DNS policy for domain a.example.com created" || len(dir.created) != 1 {
		t.Errorf("expected a create for a differently-cased domain, got %q and calls %v", out.Message, dir.calls)
	}
}

func TestReconcile_DuplicateDomainsUseFirst(t *testing.T) {
	first := remoteA("p1")
	first.TTLSeconds = 60
	second := remoteA("p2")
	dir := newFake(first, second)

	if _, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "default", desiredA(), ModeApply); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir.calls[len(dir.calls)-1] != "updatePolicy s-default p1" {
		t.Errorf("expected the first match to be updated, got calls %v", dir.calls)
	}
}

func TestReconcile_SiteNotFound(t *testing.T) {
	dir := newFake()
	_, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "lab", desiredA(), ModeApply)

	var notFound *SiteNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected SiteNotFoundError, got %v", err)
	}
	if err.Error() != "Site with name 'lab' not found on UniFi Network" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if diff := cmp.Diff([]string{"listSites"}, dir.calls); diff != "" {
		t.Errorf("expected only listSites (-want +got):\n%s", diff)
	}
}

func TestReconcile_TransportFailures(t *testing.T) {
	transport := &dns.TransportError{Op: "x", Method: http.MethodGet, Path: "/", StatusCode: http.StatusInternalServerError}

	tests := []struct {
		name      string
		setup     func(f *fakeDirectory)
		desired   dns.DesiredPolicy
		wantKind  string
		wantCalls int
	}{
		{
			name:      "list sites",
			setup:     func(f *fakeDirectory) { f.sitesErr = transport },
			desired:   desiredA(),
			wantKind:  KindSiteLookup,
			wantCalls: 1,
		},
		{
			name:      "list policies",
			setup:     func(f *fakeDirectory) { f.policiesErr = transport },
			desired:   desiredA(),
			wantKind:  KindPolicyLookup,
			wantCalls: 2,
		},
		{
			name:      "create",
			setup:     func(f *fakeDirectory) { f.mutateErr = transport },
			desired:   desiredA(),
			wantKind:  KindMutation,
			wantCalls: 3,
		},
		{
			name: "update",
			setup: func(f *fakeDirectory) {
				p := remoteA("p1")
				p.Enabled = false
				f.policies["s-default"] = []dns.Policy{p}
				f.mutateErr = transport
			},
			desired:   desiredA(),
			wantKind:  KindMutation,
			wantCalls: 3,
		},
		{
			name: "delete",
			setup: func(f *fakeDirectory) {
				f.policies["s-default"] = []dns.Policy{remoteA("p1")}
				f.mutateErr = transport
			},
			desired: func() dns.DesiredPolicy {
				d := dns.NewDesiredPolicy("a.example.com")
				d.State = dns.StateAbsent
				return d
			}(),
			wantKind:  KindMutation,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFake()
			tt.setup(dir)

			out, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "default", tt.desired, ModeApply)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if out != nil {
				t.Errorf("expected no outcome on error, got %+v", out)
			}
			if got := Kind(err); got != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", got, tt.wantKind)
			}
			if !errors.Is(err, dns.ErrServer) {
				t.Errorf("expected the transport error to stay reachable, got %v", err)
			}
			if len(dir.calls) != tt.wantCalls {
				t.Errorf("expected %d calls, got %v", tt.wantCalls, dir.calls)
			}
		})
	}
}

func TestReconcile_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(d *dns.DesiredPolicy)
		field string
	}{
		{"empty domain", func(d *dns.DesiredPolicy) { d.Domain = "" }, "domain"},
		{"bad type", func(d *dns.DesiredPolicy) { d.Type = "MX_RECORD" }, "type"},
		{"missing type", func(d *dns.DesiredPolicy) { d.Type = "" }, "type"},
		{"bad state", func(d *dns.DesiredPolicy) { d.State = "gone" }, "state"},
		{"negative ttl", func(d *dns.DesiredPolicy) { d.TTLSeconds = -1 }, "ttl_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFake()
			d := desiredA()
			tt.edit(&d)

			_, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "default", d, ModeApply)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
			if len(dir.calls) != 0 {
				t.Errorf("expected no directory calls, got %v", dir.calls)
			}
		})
	}
}

func TestReconcile_AbsentNeedsNoType(t *testing.T) {
	d := dns.NewDesiredPolicy("a.example.com")
	d.State = dns.StateAbsent
	if err := Validate(d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReconcile_IgnoresCallerID(t *testing.T) {
	dir := newFake()
	d := desiredA()
	d.ID = "caller-supplied"

	if _, err := NewEngine(dir, logr.Discard()).Reconcile(context.Background(), "default", d, ModeApply); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dir.created) != 1 || dir.created[0].ID != "" {
		t.Errorf("expected create without id, got %+v", dir.created)
	}
}
