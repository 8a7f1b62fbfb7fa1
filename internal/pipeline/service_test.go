package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/oigen/internal/domain"

	"github.com/google/uuid"
)

type stubRecordRepository struct {
	byKey map[string]*domain.Record
	byID  map[uuid.UUID]*domain.Record

	failGetOrCreate int
	failTransition  int

	transitionHook func(status domain.Status, fields domain.TransitionFields)
}

func newStubRecordRepository() *stubRecordRepository {
	return &stubRecordRepository{
		byKey: map[string]*domain.Record{},
		byID:  map[uuid.UUID]*domain.Record{},
	}
}

func (s *stubRecordRepository) GetOrCreate(_ context.Context, record domain.Record) (domain.Record, bool, error) {
	if s.failGetOrCreate > 0 {
		s.failGetOrCreate--
		return domain.Record{}, false, fmt.Errorf("ledger unavailable")
	}
	if existing, ok := s.byKey[record.RowKey]; ok {
		return *existing, false, nil
	}
	stored := record
	stored.ID = uuid.New()
	stored.Status = domain.StatusPending
	stored.LastAttemptAt = time.Now()
	s.byKey[stored.RowKey] = &stored
	s.byID[stored.ID] = &stored
	return stored, true, nil
}

func (s *stubRecordRepository) Transition(_ context.Context, id uuid.UUID, status domain.Status, fields domain.TransitionFields) (domain.Record, error) {
	if s.failTransition > 0 {
		s.failTransition--
		return domain.Record{}, fmt.Errorf("ledger unavailable")
	}
	if s.transitionHook != nil {
		s.transitionHook(status, fields)
	}
	record, ok := s.byID[id]
	if !ok {
		return domain.Record{}, fmt.Errorf("record %s not found", id)
	}
	record.Status = status
	if fields.NodeType != nil {
		record.NodeType = *fields.NodeType
	}
	if fields.Action != nil {
		record.Action = *fields.Action
	}
	if fields.DisplayIdentifier != nil {
		record.DisplayIdentifier = *fields.DisplayIdentifier
	}
	if fields.RenderedFragment != nil {
		record.RenderedFragment = *fields.RenderedFragment
	}
	if fields.OutputContainer != nil {
		record.OutputContainer = *fields.OutputContainer
	}
	record.ErrorDetail = fields.ErrorDetail
	record.LastAttemptAt = time.Now()
	return *record, nil
}

func (s *stubRecordRepository) GetByID(_ context.Context, id uuid.UUID) (domain.Record, error) {
	record, ok := s.byID[id]
	if !ok {
		return domain.Record{}, fmt.Errorf("record %s not found", id)
	}
	return *record, nil
}

func (s *stubRecordRepository) GetByRowKey(_ context.Context, rowKey string) (domain.Record, error) {
	record, ok := s.byKey[rowKey]
	if !ok {
		return domain.Record{}, fmt.Errorf("row key %s not found", rowKey)
	}
	return *record, nil
}

func (s *stubRecordRepository) FindByDisplayIdentifier(_ context.Context, identifier string) ([]domain.Record, error) {
	var matches []domain.Record
	for _, record := range s.byID {
		if record.DisplayIdentifier == identifier {
			matches = append(matches, *record)
		}
	}
	return matches, nil
}

func (s *stubRecordRepository) ListByStatus(_ context.Context, status domain.Status, _ int, _ int) ([]domain.Record, error) {
	var matches []domain.Record
	for _, record := range s.byID {
		if record.Status == status {
			matches = append(matches, *record)
		}
	}
	return matches, nil
}

func (s *stubRecordRepository) StatusCounts(_ context.Context) (map[domain.Status]int, error) {
	counts := map[domain.Status]int{}
	for _, record := range s.byID {
		counts[record.Status]++
	}
	return counts, nil
}

func (s *stubRecordRepository) NodeTypeCounts(_ context.Context, status domain.Status) (map[string]int, error) {
	counts := map[string]int{}
	for _, record := range s.byID {
		if record.Status == status {
			counts[record.NodeType]++
		}
	}
	return counts, nil
}

func testSettings(t *testing.T) domain.GeneratorSettings {
	t.Helper()
	settings := domain.DefaultGeneratorSettings()
	settings.ActionOverride = domain.OverrideNone
	settings.NodeTypeOverride = domain.OverrideNone
	settings.OutputBase = filepath.Join(t.TempDir(), "import.xml")
	settings.BatchSize = 2
	return settings
}

const folderCSV = "nodetype,title,location\n" +
	"folder,Alpha,Enterprise:Root\n" +
	"folder,Beta,Enterprise:Root\n" +
	"folder,Gamma,Enterprise:Root\n"

func TestRunSplitsContainersAtBatchSize(t *testing.T) {
	repo := newStubRecordRepository()
	service := NewService(repo, testSettings(t))

	summary, err := service.Run(context.Background(), Request{
		FileName: "folders.csv",
		Data:     strings.NewReader(folderCSV),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Succeeded != 3 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("summary = %+v, want 3 succeeded", summary)
	}
	if len(summary.Containers) != 2 {
		t.Fatalf("got %d containers, want 2", len(summary.Containers))
	}
	if summary.Containers[0].Count != 2 || summary.Containers[1].Count != 1 {
		t.Fatalf("container counts = %d,%d, want 2,1", summary.Containers[0].Count, summary.Containers[1].Count)
	}
	if summary.NodeTypeCounts["folder"] != 3 {
		t.Fatalf("node type counts = %v", summary.NodeTypeCounts)
	}

	for _, record := range repo.byID {
		if record.Status != domain.StatusSuccess {
			t.Fatalf("record %s status = %s, want success", record.DisplayIdentifier, record.Status)
		}
		if record.RenderedFragment == "" || record.OutputContainer == "" {
			t.Fatalf("record %s missing fragment or container", record.DisplayIdentifier)
		}
	}
}

func TestRunSkipsSettledRows(t *testing.T) {
	repo := newStubRecordRepository()
	service := NewService(repo, testSettings(t))

	if _, err := service.Run(context.Background(), Request{FileName: "folders.csv", Data: strings.NewReader(folderCSV)}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second, err := service.Run(context.Background(), Request{FileName: "folders.csv", Data: strings.NewReader(folderCSV)})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Skipped != 3 || second.Succeeded != 0 {
		t.Fatalf("second run summary = %+v, want all skipped", second)
	}

	forced, err := service.Run(context.Background(), Request{FileName: "folders.csv", Data: strings.NewReader(folderCSV), Force: true})
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if forced.Succeeded != 3 || forced.Skipped != 0 {
		t.Fatalf("forced run summary = %+v, want all reprocessed", forced)
	}
}

func TestRunRecordsRowFailureAndContinues(t *testing.T) {
	repo := newStubRecordRepository()
	service := NewService(repo, testSettings(t))

	csv := "nodetype,title,location\n" +
		"folder,Alpha,Enterprise:Root\n" +
		",Broken,Enterprise:Root\n" +
		"folder,Gamma,Enterprise:Root\n"

	summary, err := service.Run(context.Background(), Request{FileName: "rows.csv", Data: strings.NewReader(csv)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 2 succeeded 1 failed", summary)
	}

	failed, err := repo.ListByStatus(context.Background(), domain.StatusFailed, 0, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("got %d failed records, want 1", len(failed))
	}
	if failed[0].ErrorDetail == "" {
		t.Fatal("failed record has no error detail")
	}
	// The broken row is the second data row; the ledger numbers rows from 1.
	if failed[0].SourceRowIndex != 2 {
		t.Fatalf("failed row index = %d, want 2", failed[0].SourceRowIndex)
	}
}

func TestRunNumbersRowsFromOne(t *testing.T) {
	repo := newStubRecordRepository()
	service := NewService(repo, testSettings(t))

	if _, err := service.Run(context.Background(), Request{FileName: "folders.csv", Data: strings.NewReader(folderCSV)}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	indexes := map[int]bool{}
	for _, record := range repo.byID {
		indexes[record.SourceRowIndex] = true
	}
	for want := 1; want <= 3; want++ {
		if !indexes[want] {
			t.Fatalf("row indexes = %v, want 1..3", indexes)
		}
	}
	if indexes[0] {
		t.Fatalf("row indexes = %v, found 0-based entry", indexes)
	}
}

func TestRunMarksSuccessOnlyAfterContainerWritten(t *testing.T) {
	repo := newStubRecordRepository()
	service := NewService(repo, testSettings(t))

	repo.transitionHook = func(status domain.Status, fields domain.TransitionFields) {
		if status != domain.StatusSuccess {
			return
		}
		if fields.OutputContainer == nil {
			t.Error("success transition without a container path")
			return
		}
		if _, err := os.Stat(*fields.OutputContainer); err != nil {
			t.Errorf("success recorded before container %s reached disk: %v", *fields.OutputContainer, err)
		}
	}

	summary, err := service.Run(context.Background(), Request{FileName: "folders.csv", Data: strings.NewReader(folderCSV)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Succeeded != 3 {
		t.Fatalf("summary = %+v, want 3 succeeded", summary)
	}
}

func TestRunFailureDetailClearedOnLaterSuccess(t *testing.T) {
	repo := newStubRecordRepository()

	settings := testSettings(t)
	csv := "nodetype,title,location\n,Alpha,Enterprise:Root\n"

	service := NewService(repo, settings)
	if _, err := service.Run(context.Background(), Request{FileName: "rows.csv", Data: strings.NewReader(csv)}); err != nil {
		t.Fatalf("failing run: %v", err)
	}

	// Same row content succeeds once a node type override supplies the
	// missing value; the stored failure text must not survive.
	settings.NodeTypeOverride = domain.NodeTypeFolder
	service = NewService(repo, settings)
	summary, err := service.Run(context.Background(), Request{FileName: "rows.csv", Data: strings.NewReader(csv)})
	if err != nil {
		t.Fatalf("recovery run: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("summary = %+v, want 1 succeeded", summary)
	}

	for _, record := range repo.byID {
		if record.Status != domain.StatusSuccess {
			t.Fatalf("record status = %s, want success", record.Status)
		}
		if record.ErrorDetail != "" {
			t.Fatalf("stale error detail survived: %q", record.ErrorDetail)
		}
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	repo := newStubRecordRepository()
	service := NewService(repo, testSettings(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := service.Run(ctx, Request{FileName: "folders.csv", Data: strings.NewReader(folderCSV)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Stopped {
		t.Fatal("cancelled run not reported as stopped")
	}
	if summary.Succeeded != 0 {
		t.Fatalf("cancelled run processed %d rows", summary.Succeeded)
	}
}

func TestRunRetriesLedgerOnce(t *testing.T) {
	repo := newStubRecordRepository()
	repo.failGetOrCreate = 1
	service := NewService(repo, testSettings(t))

	summary, err := service.Run(context.Background(), Request{FileName: "folders.csv", Data: strings.NewReader(folderCSV)})
	if err != nil {
		t.Fatalf("Run with transient ledger failure: %v", err)
	}
	if summary.Succeeded != 3 {
		t.Fatalf("summary = %+v, want 3 succeeded", summary)
	}
}

func TestRunAbortsWhenLedgerStaysDown(t *testing.T) {
	repo := newStubRecordRepository()
	repo.failGetOrCreate = 2
	service := NewService(repo, testSettings(t))

	if _, err := service.Run(context.Background(), Request{FileName: "folders.csv", Data: strings.NewReader(folderCSV)}); err == nil {
		t.Fatal("expected run to abort when ledger keeps failing")
	}
}

func TestRunRejectsUnsupportedFormat(t *testing.T) {
	repo := newStubRecordRepository()
	service := NewService(repo, testSettings(t))

	if _, err := service.Run(context.Background(), Request{FileName: "rows.pdf", Data: strings.NewReader("x")}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}
