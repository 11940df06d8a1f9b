package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"purpleair_status/logger"
	"purpleair_status/models"
	"purpleair_status/purpleair"
	"purpleair_status/status"

	"github.com/google/uuid"
)

// Fetcher loads one sensor record from the API
type Fetcher interface {
	FetchSensor(ctx context.Context, sensorIndex int) (*purpleair.Sensor, error)
}

// Poller fetches and classifies the configured sensors
type Poller struct {
	fetcher     Fetcher
	indices     []int
	thresholds  status.Thresholds
	workerCount int
	timeout     time.Duration
	now         func() time.Time
}

// Config holds poller configuration
type Config struct {
	SensorIndices []int
	Thresholds    status.Thresholds
	// Concurrency bounds parallel requests; 1 fetches sequentially
	Concurrency int
	// RequestTimeout bounds each sensor request
	RequestTimeout time.Duration
}

// FetchJob is a single sensor to fetch
type FetchJob struct {
	Position    int
	SensorIndex int
}

// FetchResult contains the outcome of fetching one sensor
type FetchResult struct {
	Position int
	Reading  models.SensorReading
	Duration time.Duration
	Error    error
}

// NewPoller creates a new poller
func NewPoller(fetcher Fetcher, cfg Config) *Poller {
	workerCount := cfg.Concurrency
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(cfg.SensorIndices) && len(cfg.SensorIndices) > 0 {
		workerCount = len(cfg.SensorIndices)
	}

	return &Poller{
		fetcher:     fetcher,
		indices:     append([]int(nil), cfg.SensorIndices...),
		thresholds:  cfg.Thresholds,
		workerCount: workerCount,
		timeout:     cfg.RequestTimeout,
		now:         time.Now,
	}
}

// SetClock overrides the time source used for classification
func (p *Poller) SetClock(now func() time.Time) {
	p.now = now
}

// SensorIndices returns the configured sensor list
func (p *Poller) SensorIndices() []int {
	return append([]int(nil), p.indices...)
}

// Refresh fetches every configured sensor and returns a complete snapshot in
// configured order. Per-sensor failures become placeholder readings. If ctx
// ends before the batch completes, no snapshot is returned.
func (p *Poller) Refresh(ctx context.Context) (*models.Snapshot, error) {
	startTime := p.now()
	logger.Printf("Refreshing %d sensor(s) with %d parallel worker(s)\n", len(p.indices), p.workerCount)

	results := p.fetchParallel(ctx, p.indices)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refresh aborted: %w", err)
	}

	readings := make([]models.SensorReading, len(p.indices))
	filled := make([]bool, len(p.indices))
	for _, result := range results {
		readings[result.Position] = result.Reading
		filled[result.Position] = true
	}
	for i, ok := range filled {
		if !ok {
			return nil, fmt.Errorf("refresh incomplete: sensor %d has no result", p.indices[i])
		}
	}

	snapshot := &models.Snapshot{
		ID:        uuid.NewString(),
		FetchedAt: startTime.UTC(),
		Duration:  p.now().Sub(startTime),
		Readings:  readings,
	}

	p.displaySummary(snapshot, results)

	return snapshot, nil
}

// fetchParallel fetches sensors using worker goroutines
func (p *Poller) fetchParallel(ctx context.Context, indices []int) []FetchResult {
	jobs := make(chan FetchJob, len(indices))
	results := make(chan FetchResult, len(indices))

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, jobs, results, &wg)
	}

	for pos, idx := range indices {
		jobs <- FetchJob{Position: pos, SensorIndex: idx}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	allResults := make([]FetchResult, 0, len(indices))
	for result := range results {
		allResults = append(allResults, result)
		logger.LogProgress(len(allResults), len(indices), fmt.Sprintf("sensor %d", indices[result.Position]))
	}

	return allResults
}

// worker fetches sensors from the job channel
func (p *Poller) worker(ctx context.Context, jobs <-chan FetchJob, results chan<- FetchResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			// drain without fetching; Refresh discards the batch
			continue
		}
		results <- p.fetchOne(ctx, job)
	}
}

// fetchOne fetches and classifies a single sensor
func (p *Poller) fetchOne(ctx context.Context, job FetchJob) FetchResult {
	startTime := time.Now()
	result := FetchResult{Position: job.Position}

	reqCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	sensor, err := p.fetcher.FetchSensor(reqCtx, job.SensorIndex)
	if err != nil {
		result.Error = err
		result.Reading = FailedReading(job.SensorIndex, err)
		result.Duration = time.Since(startTime)
		logger.Warnf("Sensor %d: %v\n", job.SensorIndex, err)
		return result
	}

	result.Reading = BuildReading(job.SensorIndex, sensor, p.now().Unix(), p.thresholds)
	result.Duration = time.Since(startTime)
	logger.Debugf("Sensor %d: %s in %v\n", job.SensorIndex, result.Reading.Label, result.Duration)

	return result
}

// BuildReading attaches the sensor index and classification to a fetched record
func BuildReading(sensorIndex int, s *purpleair.Sensor, now int64, th status.Thresholds) models.SensorReading {
	res := status.Classify(now, s.LastSeen, s.Confidence, th)

	reading := models.SensorReading{
		SensorIndex:  sensorIndex,
		Model:        s.Model,
		Hardware:     s.Hardware,
		LastSeen:     s.LastSeen,
		Confidence:   s.Confidence,
		RSSI:         s.RSSI,
		Uptime:       s.Uptime,
		Latitude:     s.Latitude,
		Longitude:    s.Longitude,
		PM25:         s.PM25,
		PM25Hour:     s.PM25Hour,
		TemperatureA: s.TemperatureA,
		Status:       res.Kind,
		Label:        res.Label,
		Color:        res.Color,
		Raw:          s.Raw,
	}
	if s.Name != nil {
		reading.Name = *s.Name
	}
	return reading
}

// FailedReading is the placeholder for a sensor that could not be fetched
func FailedReading(sensorIndex int, err error) models.SensorReading {
	res := status.RequestError()
	reason := status.TransportFailure

	var se *purpleair.StatusError
	if errors.As(err, &se) {
		res = status.HTTPError(se.Code)
		reason = status.ReasonForStatusCode(se.Code)
	}

	return models.SensorReading{
		SensorIndex:   sensorIndex,
		Name:          "N/A",
		Status:        res.Kind,
		Label:         res.Label,
		Color:         res.Color,
		FailureReason: reason,
		Raw:           map[string]any{},
	}
}

// displaySummary logs a summary of the refresh
func (p *Poller) displaySummary(snapshot *models.Snapshot, results []FetchResult) {
	counts := snapshot.Counts()

	var slowest time.Duration
	for _, r := range results {
		if r.Duration > slowest {
			slowest = r.Duration
		}
	}

	logger.Println(strings.Repeat("=", 60))
	logger.Printf("REFRESH SUMMARY (%s)\n", snapshot.ID)
	logger.Println(strings.Repeat("=", 60))
	logger.Printf("Sensors: %d\n", len(snapshot.Readings))
	logger.Printf("✅ Online: %d\n", counts[status.Online])
	logger.Printf("⚠️ Low confidence: %d\n", counts[status.LowConfidence])
	logger.Printf("❌ Offline: %d\n", counts[status.Offline])
	logger.Printf("❌ Fetch errors: %d\n", counts[status.FetchError])
	logger.Printf("Total time: %v (slowest request %v)\n", snapshot.Duration, slowest)
	logger.Println(strings.Repeat("=", 60))
}
