package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/protocol"
)

// ErrNonIncreasing is returned for records whose interval end times do not
// strictly increase.
var ErrNonIncreasing = errors.New("storage: interval times must strictly increase")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Record is the outcome of one completed interval.
type Record struct {
	Interval   int           `json:"interval"`
	Start      float64       `json:"start"`
	Time       float64       `json:"time"`
	Flag       protocol.Flag `json:"flag"`
	Iterations int           `json:"iterations"`
	Residual   float64       `json:"residual"`
	Value      dynamo.Value  `json:"value"`
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Problem    string             `json:"problem"`
	Integrator string             `json:"integrator"`
	Timestamp  time.Time          `json:"timestamp"`
	Start      float64            `json:"start"`
	End        float64            `json:"end"`
	Dt         float64            `json:"dt"`
	Dims       []int              `json:"dims"`
	Final      string             `json:"final"`
	Intervals  int                `json:"intervals"`
	Turns      int                `json:"turns"`
	Metrics    map[string]float64 `json:"metrics"`
}

// CheckRecords verifies interval end times strictly increase.
func CheckRecords(records []Record) error {
	for i := 1; i < len(records); i++ {
		if records[i].Time <= records[i-1].Time {
			return fmt.Errorf("%w: record %d at t=%g after t=%g",
				ErrNonIncreasing, i, records[i].Time, records[i-1].Time)
		}
	}
	return nil
}

func (s *Store) Save(meta RunMetadata, records []Record) (string, error) {
	if err := CheckRecords(records); err != nil {
		return "", err
	}

	runID := fmt.Sprintf("%s_%s", meta.Problem, xid.New().String())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if meta.Dims == nil && len(records) > 0 {
		for _, x := range records[0].Value {
			meta.Dims = append(meta.Dims, len(x))
		}
	}

	metaPath := filepath.Join(runDir, "metadata.json")
	metaFile, err := os.Create(metaPath)
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvPath := filepath.Join(runDir, "intervals.csv")
	csvFile, err := os.Create(csvPath)
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)

	header := []string{"interval", "start", "time", "flag", "iterations", "residual"}
	for n, dim := range meta.Dims {
		for i := 0; i < dim; i++ {
			header = append(header, fmt.Sprintf("n%d_x%d", n, i))
		}
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, rec := range records {
		row := []string{
			strconv.Itoa(rec.Interval),
			formatFloat(rec.Start),
			formatFloat(rec.Time),
			rec.Flag.String(),
			strconv.Itoa(rec.Iterations),
			formatFloat(rec.Residual),
		}
		for _, val := range rec.Value.Flatten() {
			row = append(row, formatFloat(val))
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	return runID, w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// List returns the stored runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	metaPath := filepath.Join(s.baseDir, runID, "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadRecords(runID string) ([]Record, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}

	csvPath := filepath.Join(s.baseDir, runID, "intervals.csv")
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return []Record{}, nil
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseRecord(row, meta.Dims)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", csvPath, i+2, err)
		}
		records = append(records, rec)
	}

	return records, CheckRecords(records)
}

func parseRecord(row []string, dims []int) (Record, error) {
	if len(row) < 6 {
		return Record{}, fmt.Errorf("short row with %d fields", len(row))
	}

	var rec Record
	var err error
	if rec.Interval, err = strconv.Atoi(row[0]); err != nil {
		return Record{}, err
	}
	if rec.Start, err = strconv.ParseFloat(row[1], 64); err != nil {
		return Record{}, err
	}
	if rec.Time, err = strconv.ParseFloat(row[2], 64); err != nil {
		return Record{}, err
	}
	if rec.Flag, err = protocol.ParseFlag(row[3]); err != nil {
		return Record{}, err
	}
	if rec.Iterations, err = strconv.Atoi(row[4]); err != nil {
		return Record{}, err
	}
	if rec.Residual, err = strconv.ParseFloat(row[5], 64); err != nil {
		return Record{}, err
	}

	col := 6
	rec.Value = make(dynamo.Value, len(dims))
	for n, dim := range dims {
		if col+dim > len(row) {
			return Record{}, fmt.Errorf("node %d: %w", n, dynamo.ErrDimensionMismatch)
		}
		x := make(dynamo.State, dim)
		for i := range x {
			if x[i], err = strconv.ParseFloat(row[col+i], 64); err != nil {
				return Record{}, err
			}
		}
		rec.Value[n] = x
		col += dim
	}
	return rec, nil
}
