package capability

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyellow/dr-matricula-go/internal/catalog"
	"github.com/garyellow/dr-matricula-go/internal/ctxutil"
	"github.com/garyellow/dr-matricula-go/internal/metrics"
	"github.com/garyellow/dr-matricula-go/internal/storage"
)

// Invocation status labels.
const (
	StatusOK          = "ok"
	StatusNotFound    = "not_found"
	StatusEmpty       = "empty"
	StatusUnavailable = "unavailable"
	StatusError       = "error"
	StatusPrompt      = "prompt"
)

// Ledger statuses.
const (
	EnrollmentSuccess = "success"
	EnrollmentFailed  = "failed"
)

// CatalogSource returns the current catalog snapshot.
type CatalogSource interface {
	Get(ctx context.Context) (*catalog.Catalog, error)
}

// Resolver maps free text to a program id.
type Resolver interface {
	Resolve(ctx context.Context, text string, cat *catalog.Catalog) (int, bool)
}

// Backend serves per-program data and accepts enrollments.
type Backend interface {
	FetchGroups(ctx context.Context, programID int) ([]catalog.Group, error)
	FetchCurriculum(ctx context.Context, programID int) ([]catalog.CurriculumLevel, error)
	SubmitEnrollment(ctx context.Context, programID int) (*catalog.EnrollmentResult, error)
}

// EnrollmentLedger records enrollment requests.
type EnrollmentLedger interface {
	RecordEnrollment(ctx context.Context, e storage.Enrollment) error
}

// Deps are the collaborators of a Set. Ledger and Metrics are optional.
type Deps struct {
	Catalog  CatalogSource
	Resolver Resolver
	Backend  Backend
	Ledger   EnrollmentLedger
	Metrics  *metrics.Metrics
}

// Options tune rendering and enrollment links.
type Options struct {
	CurriculumView  string // summary, full or overview
	AdmissionsEmail string
	PaymentBaseURL  string
	NewReference    func() string
	Now             func() time.Time
}

// Set executes capabilities. It is safe for concurrent use.
type Set struct {
	deps Deps
	opts Options
}

// New builds a Set, applying defaults to zero options.
func New(deps Deps, opts Options) *Set {
	if opts.CurriculumView == "" {
		opts.CurriculumView = ViewSummary
	}
	if opts.AdmissionsEmail == "" {
		opts.AdmissionsEmail = "admisiones@ube.edu.ec"
	}
	if opts.NewReference == nil {
		opts.NewReference = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Set{deps: deps, opts: opts}
}

// Invoke runs c with arg and returns the reply text. Failures are rendered
// in-band; the result is never empty.
func (s *Set) Invoke(ctx context.Context, c Capability, arg string) string {
	start := time.Now()
	arg = strings.TrimSpace(arg)

	var text, status string
	switch c {
	case ListPrograms:
		text, status = s.listPrograms(ctx, arg)
	case ProgramDetail:
		text, status = s.programDetail(ctx, arg)
	case Groups:
		text, status = s.groups(ctx, arg)
	case Curriculum:
		text, status = s.curriculum(ctx, arg)
	case AdmissionRequirements:
		text, status = s.admissionRequirements(ctx, arg)
	case Enroll:
		text, status = s.enroll(ctx, arg)
	default:
		text, status = outOfScopeText(s.opts.AdmissionsEmail), StatusOK
	}

	s.deps.Metrics.RecordCapability(c.String(), status, time.Since(start).Seconds())
	if text == "" {
		return outOfScopeText(s.opts.AdmissionsEmail)
	}
	return text
}

// OutOfScope returns the greeting and redirect text.
func (s *Set) OutOfScope() string {
	return outOfScopeText(s.opts.AdmissionsEmail)
}

func (s *Set) catalog(ctx context.Context) (*catalog.Catalog, bool) {
	cat, err := s.deps.Catalog.Get(ctx)
	if err != nil || cat == nil {
		slog.WarnContext(ctx, "Catalog unavailable", "error", err)
		return nil, false
	}
	return cat, true
}

// lookup resolves arg against the catalog.
func (s *Set) lookup(ctx context.Context, cat *catalog.Catalog, arg string) (catalog.Program, catalog.Level, bool) {
	if arg == "" || s.deps.Resolver == nil {
		return catalog.Program{}, catalog.Undergraduate, false
	}
	id, ok := s.deps.Resolver.Resolve(ctx, arg, cat)
	if !ok {
		return catalog.Program{}, catalog.Undergraduate, false
	}
	return cat.Find(id)
}

func (s *Set) listPrograms(ctx context.Context, filter string) (string, string) {
	cat, ok := s.catalog(ctx)
	if !ok {
		return unavailableText, StatusUnavailable
	}
	if cat.Len() == 0 {
		return noProgramsText, StatusEmpty
	}
	if p, lvl, found := s.lookup(ctx, cat, filter); found {
		return renderSingleListing(p, lvl), StatusOK
	}
	return renderListing(cat), StatusOK
}

func (s *Set) programDetail(ctx context.Context, arg string) (string, string) {
	cat, ok := s.catalog(ctx)
	if !ok {
		return unavailableText, StatusUnavailable
	}
	p, lvl, found := s.lookup(ctx, cat, arg)
	if !found {
		return notFoundText, StatusNotFound
	}
	return renderDetail(p, lvl), StatusOK
}

func (s *Set) groups(ctx context.Context, arg string) (string, string) {
	cat, ok := s.catalog(ctx)
	if !ok {
		return unavailableText, StatusUnavailable
	}
	p, _, found := s.lookup(ctx, cat, arg)
	if !found {
		return notFoundText, StatusNotFound
	}
	groups, err := s.deps.Backend.FetchGroups(ctx, p.ID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to fetch groups", "program_id", p.ID, "error", err)
		return unavailableText, StatusUnavailable
	}
	if len(groups) == 0 {
		return noGroupsText, StatusEmpty
	}
	return renderGroups(p.Name, groups), StatusOK
}

func (s *Set) curriculum(ctx context.Context, arg string) (string, string) {
	cat, ok := s.catalog(ctx)
	if !ok {
		return unavailableText, StatusUnavailable
	}
	p, _, found := s.lookup(ctx, cat, arg)
	if !found {
		return notFoundText, StatusNotFound
	}
	levels, err := s.deps.Backend.FetchCurriculum(ctx, p.ID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to fetch curriculum", "program_id", p.ID, "error", err)
		return unavailableText, StatusUnavailable
	}
	if len(levels) == 0 {
		return noCurriculumText, StatusEmpty
	}
	return renderCurriculum(p.Name, levels, s.opts.CurriculumView), StatusOK
}

func (s *Set) admissionRequirements(ctx context.Context, arg string) (string, string) {
	generic := renderRequirements("**Requisitos de admisión de la UBE**", catalog.Undergraduate, s.opts.AdmissionsEmail)
	if arg == "" {
		return generic, StatusOK
	}
	cat, ok := s.catalog(ctx)
	if !ok {
		return generic, StatusOK
	}
	p, lvl, found := s.lookup(ctx, cat, arg)
	if !found {
		return notFoundText + "\n\n" + generic, StatusNotFound
	}
	title := "**Requisitos de admisión para " + p.Name + "**"
	return renderRequirements(title, lvl, s.opts.AdmissionsEmail), StatusOK
}

func (s *Set) enroll(ctx context.Context, arg string) (string, string) {
	if arg == "" {
		return enrollPromptText, StatusPrompt
	}
	cat, ok := s.catalog(ctx)
	if !ok {
		return unavailableText, StatusUnavailable
	}
	p, _, found := s.lookup(ctx, cat, arg)
	if !found {
		return notFoundText, StatusNotFound
	}

	ref := s.opts.NewReference()
	result, err := s.deps.Backend.SubmitEnrollment(ctx, p.ID)
	if err != nil || !result.OK() {
		if err != nil {
			s.deps.Metrics.RecordEnrollment("error")
		} else {
			s.deps.Metrics.RecordEnrollment("rejected")
		}
		slog.WarnContext(ctx, "Enrollment not accepted", "program_id", p.ID, "error", err)
		s.record(ctx, ref, p, EnrollmentFailed)
		return enrollFailedText(p.Name, s.opts.AdmissionsEmail), StatusError
	}

	s.deps.Metrics.RecordEnrollment("success")
	s.record(ctx, ref, p, EnrollmentSuccess)
	return enrollConfirmationText(p.Name, s.paymentLink(p.ID, ref), s.opts.AdmissionsEmail), StatusOK
}

// record writes to the ledger. Ledger failures are logged and otherwise ignored.
func (s *Set) record(ctx context.Context, ref string, p catalog.Program, status string) {
	if s.deps.Ledger == nil {
		return
	}
	err := s.deps.Ledger.RecordEnrollment(ctx, storage.Enrollment{
		Reference:   ref,
		SessionID:   ctxutil.GetSessionID(ctx),
		ProgramID:   p.ID,
		ProgramName: p.Name,
		Status:      status,
		CreatedAt:   s.opts.Now(),
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to record enrollment", "reference", ref, "error", err)
	}
}

func (s *Set) paymentLink(programID int, ref string) string {
	q := url.Values{}
	q.Set("carrera", strconv.Itoa(programID))
	q.Set("ref", ref)
	return s.opts.PaymentBaseURL + "?" + q.Encode()
}
