package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"qms/dashboard-service/internal/analytics"
	"qms/dashboard-service/internal/models"
	"qms/dashboard-service/internal/store"

	"go.uber.org/zap"
)

const tableLimit = 100

type Store interface {
	ListVisits(ctx context.Context, filter store.VisitFilter) ([]models.Visit, error)
	ListServices(ctx context.Context) ([]models.Service, error)
	ListDesks(ctx context.Context) ([]models.Desk, error)
	ListTellers(ctx context.Context) ([]models.Teller, error)
}

// Cache holds reports for periods that have already ended.
type Cache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
}

type Service struct {
	store  Store
	cache  Cache
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Service)

func WithCache(cache Cache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.now = clock }
}

func NewService(st Store, loc *time.Location, logger *zap.Logger, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{store: st, loc: loc, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Today() time.Time {
	return s.now().In(s.loc)
}

type Chart struct {
	Window     analytics.Window   `json:"window"`
	Unit       analytics.Unit     `json:"unit"`
	Categories []string           `json:"categories"`
	Buckets    []analytics.Bucket `json:"buckets"`
	Insights   analytics.Insights `json:"insights"`
}

// ChartRequest selects the visits to chart. Services restricts the chart to
// the named services; when empty every service is charted.
type ChartRequest struct {
	Window   analytics.Window
	Unit     analytics.Unit
	Services []string
}

// HourlyVisits charts one day by hour of day, weekends included.
func (s *Service) HourlyVisits(ctx context.Context, day time.Time, services []string) (Chart, error) {
	return s.Chart(ctx, ChartRequest{Window: analytics.DayWindow(day.In(s.loc)), Unit: analytics.UnitHour, Services: services})
}

// WeeklyVisits charts the ISO week containing day, Monday to Friday.
func (s *Service) WeeklyVisits(ctx context.Context, day time.Time, services []string) (Chart, error) {
	return s.Chart(ctx, ChartRequest{Window: analytics.WeekWindow(day.In(s.loc)), Unit: analytics.UnitWeekday, Services: services})
}

// MonthlyVisits charts the business days of the month containing day.
func (s *Service) MonthlyVisits(ctx context.Context, day time.Time, services []string) (Chart, error) {
	return s.Chart(ctx, ChartRequest{Window: analytics.MonthWindow(day.In(s.loc)), Unit: analytics.UnitBusinessDayOfMonth, Services: services})
}

// RangeVisits charts every business day from start through end.
func (s *Service) RangeVisits(ctx context.Context, start, end time.Time, services []string) (Chart, error) {
	return s.Chart(ctx, ChartRequest{Window: analytics.RangeWindow(start.In(s.loc), end.In(s.loc)), Unit: analytics.UnitBusinessDay, Services: services})
}

// WeekdayComparison totals a date range by weekday, Monday to Friday.
func (s *Service) WeekdayComparison(ctx context.Context, start, end time.Time, services []string) (Chart, error) {
	return s.Chart(ctx, ChartRequest{Window: analytics.RangeWindow(start.In(s.loc), end.In(s.loc)), Unit: analytics.UnitWeekday, Services: services})
}

func (s *Service) Chart(ctx context.Context, req ChartRequest) (Chart, error) {
	key := fmt.Sprintf("chart:%s:%d:%d:%s", req.Unit, req.Window.Start.Unix(), req.Window.End.Unix(), strings.Join(req.Services, ","))
	var chart Chart
	if s.cacheable(req.Window) && s.cache.Get(ctx, key, &chart) {
		return chart, nil
	}

	services, err := s.store.ListServices(ctx)
	if err != nil {
		return Chart{}, fmt.Errorf("list services: %w", err)
	}
	visits, err := s.store.ListVisits(ctx, store.VisitFilter{
		TimeField: store.JoinedOn,
		From:      req.Window.Start,
		To:        req.Window.End,
	})
	if err != nil {
		return Chart{}, fmt.Errorf("list visits: %w", err)
	}

	names := serviceNames(services)
	categories := req.Services
	restrict := len(categories) > 0
	if !restrict {
		categories = make([]string, 0, len(services))
		for _, svc := range services {
			categories = append(categories, svc.Name)
		}
	}

	series := analytics.Aggregate(visits, analytics.Options[models.Visit]{
		Window:   req.Window,
		Unit:     req.Unit,
		Location: s.loc,
		Time:     func(v models.Visit) time.Time { return v.JoinedOn },
		Category: func(v models.Visit) string {
			return analytics.CategoryName(names, v.ServiceID, models.UnknownService)
		},
		Categories: categories,
		Restrict:   restrict,
	})
	chart = Chart{
		Window:     req.Window,
		Unit:       series.Unit,
		Categories: series.Categories,
		Buckets:    series.Buckets,
		Insights:   analytics.Describe(series),
	}
	if s.cacheable(req.Window) {
		s.cache.Set(ctx, key, chart)
	}
	return chart, nil
}

type MetricsReport struct {
	Period   analytics.Period  `json:"period"`
	Previous analytics.Period  `json:"previous"`
	Summary  analytics.Summary `json:"summary"`
}

// Metrics compares a period's visits with the period before it.
func (s *Service) Metrics(ctx context.Context, period analytics.Period) (MetricsReport, error) {
	key := fmt.Sprintf("metrics:%s:%d:%d", period.Kind, period.Window.Start.Unix(), period.Window.End.Unix())
	var report MetricsReport
	if s.cacheable(period.Window) && s.cache.Get(ctx, key, &report) {
		return report, nil
	}

	previous := period.Previous()
	current, err := s.visitsJoined(ctx, period.Window)
	if err != nil {
		return MetricsReport{}, err
	}
	earlier, err := s.visitsJoined(ctx, previous.Window)
	if err != nil {
		return MetricsReport{}, err
	}
	report = MetricsReport{Period: period, Previous: previous, Summary: analytics.Summarize(current, earlier)}
	if s.cacheable(period.Window) {
		s.cache.Set(ctx, key, report)
	}
	return report, nil
}

type TeamReport struct {
	Period  analytics.Period        `json:"period"`
	Tellers []analytics.TellerStats `json:"tellers"`
}

// Team reports per-teller performance. A single day counts visits
// completed that day; longer periods count visits joined in the period.
func (s *Service) Team(ctx context.Context, period analytics.Period) (TeamReport, error) {
	tellers, err := s.store.ListTellers(ctx)
	if err != nil {
		return TeamReport{}, fmt.Errorf("list tellers: %w", err)
	}
	filter := store.VisitFilter{TimeField: store.JoinedOn, From: period.Window.Start, To: period.Window.End}
	if period.Kind == analytics.PeriodDay {
		filter.TimeField = store.CompletedOn
		filter.Statuses = []string{models.StatusCompleted}
	}
	visits, err := s.store.ListVisits(ctx, filter)
	if err != nil {
		return TeamReport{}, fmt.Errorf("list visits: %w", err)
	}
	return TeamReport{Period: period, Tellers: analytics.TeamPerformance(tellers, visits)}, nil
}

type ServiceCount struct {
	Service string `json:"service"`
	Count   int    `json:"count"`
}

type Overview struct {
	Date             string         `json:"date"`
	Waiting          int            `json:"waiting"`
	WaitingByService []ServiceCount `json:"waiting_by_service"`
	ServedToday      int            `json:"served_today"`
	SignedInToday    int            `json:"signed_in_today"`
	BusyTellers      int            `json:"busy_tellers"`
	TotalDesks       int            `json:"total_desks"`
}

// TodayOverview gathers the live counters of the dashboard home screen.
func (s *Service) TodayOverview(ctx context.Context) (Overview, error) {
	today := analytics.DayWindow(s.Today())
	services, err := s.store.ListServices(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("list services: %w", err)
	}
	waiting, err := s.store.ListVisits(ctx, store.VisitFilter{Statuses: []string{models.StatusWaiting}})
	if err != nil {
		return Overview{}, fmt.Errorf("list waiting: %w", err)
	}
	served, err := s.store.ListVisits(ctx, store.VisitFilter{
		Statuses:  []string{models.StatusCompleted},
		TimeField: store.CompletedOn,
		From:      today.Start,
		To:        today.End,
	})
	if err != nil {
		return Overview{}, fmt.Errorf("list served: %w", err)
	}
	signedIn, err := s.visitsJoined(ctx, today)
	if err != nil {
		return Overview{}, err
	}
	serving, err := s.store.ListVisits(ctx, store.VisitFilter{
		Statuses:  []string{models.StatusServing},
		TimeField: store.JoinedOn,
		From:      today.Start,
		To:        today.End,
	})
	if err != nil {
		return Overview{}, fmt.Errorf("list serving: %w", err)
	}
	desks, err := s.store.ListDesks(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("list desks: %w", err)
	}

	return Overview{
		Date:             today.Start.Format("2006-01-02"),
		Waiting:          len(waiting),
		WaitingByService: countByService(services, waiting),
		ServedToday:      len(served),
		SignedInToday:    len(signedIn),
		BusyTellers:      len(serving),
		TotalDesks:       len(desks),
	}, nil
}

type VisitRow struct {
	models.Visit
	ServiceName string `json:"service_name"`
	DeskName    string `json:"desk_name"`
	TellerName  string `json:"teller_name"`
}

// DayVisits lists the newest visits joined on day with display names.
func (s *Service) DayVisits(ctx context.Context, day time.Time) ([]VisitRow, error) {
	window := analytics.DayWindow(day.In(s.loc))
	visits, err := s.store.ListVisits(ctx, store.VisitFilter{
		TimeField: store.JoinedOn,
		From:      window.Start,
		To:        window.End,
		Limit:     tableLimit,
		Newest:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return s.named(ctx, visits)
}

func (s *Service) named(ctx context.Context, visits []models.Visit) ([]VisitRow, error) {
	services, err := s.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	desks, err := s.store.ListDesks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list desks: %w", err)
	}
	tellers, err := s.store.ListTellers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tellers: %w", err)
	}
	serviceByID := serviceNames(services)
	deskByID := make(map[string]string, len(desks))
	for _, d := range desks {
		deskByID[d.DeskID] = d.Name
	}
	tellerByID := make(map[string]string, len(tellers))
	for _, t := range tellers {
		tellerByID[t.TellerID] = t.Name
	}

	rows := make([]VisitRow, 0, len(visits))
	for _, v := range visits {
		rows = append(rows, VisitRow{
			Visit:       v,
			ServiceName: analytics.CategoryName(serviceByID, v.ServiceID, models.UnknownService),
			DeskName:    analytics.CategoryName(deskByID, v.DeskID, models.UnknownDesk),
			TellerName:  analytics.CategoryName(tellerByID, v.TellerID, models.UnknownTeller),
		})
	}
	return rows, nil
}

func (s *Service) visitsJoined(ctx context.Context, window analytics.Window) ([]models.Visit, error) {
	visits, err := s.store.ListVisits(ctx, store.VisitFilter{TimeField: store.JoinedOn, From: window.Start, To: window.End})
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return visits, nil
}

func (s *Service) cacheable(window analytics.Window) bool {
	return s.cache != nil && window.End.Before(s.now())
}

func serviceNames(services []models.Service) map[string]string {
	names := make(map[string]string, len(services))
	for _, svc := range services {
		names[svc.ServiceID] = svc.Name
	}
	return names
}

func countByService(services []models.Service, visits []models.Visit) []ServiceCount {
	names := serviceNames(services)
	counts := make(map[string]int, len(services))
	order := make([]string, 0, len(services))
	for _, svc := range services {
		if _, ok := counts[svc.Name]; !ok {
			order = append(order, svc.Name)
		}
		counts[svc.Name] = 0
	}
	var extra []string
	for _, v := range visits {
		name := analytics.CategoryName(names, v.ServiceID, models.UnknownService)
		if _, ok := counts[name]; !ok {
			extra = append(extra, name)
		}
		counts[name]++
	}
	sort.Strings(extra)
	order = append(order, extra...)

	out := make([]ServiceCount, 0, len(order))
	for _, name := range order {
		out = append(out, ServiceCount{Service: name, Count: counts[name]})
	}
	return out
}
