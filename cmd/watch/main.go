// Command watch submits a GEO accession to the gateway and follows the
// job to a terminal state from the terminal, using the same polling
// contract as the web client: one fetch at a time, a fixed delay
// between fetches, stop at the first terminal observation.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/geolyze/geolyze_server/internal/model"
	"github.com/geolyze/geolyze_server/internal/model/dto"
	"github.com/geolyze/geolyze_server/internal/poller"
	"github.com/geolyze/geolyze_server/internal/results"
)

var (
	gatewayURL = flag.String("gateway", "http://localhost:8080", "Gateway base URL")
	token      = flag.String("token", "", "Bearer token (falls back to GEOLYZE_TOKEN)")
	geoID      = flag.String("geo", "", "GEO accession to submit (e.g. GSE12345)")
	jobID      = flag.String("job", "", "Existing job id to watch")
	interval   = flag.Duration("interval", poller.DefaultInterval, "Poll interval")
)

func main() {
	flag.Parse()

	bearer := *token
	if bearer == "" {
		bearer = os.Getenv("GEOLYZE_TOKEN")
	}
	if bearer == "" {
		log.Fatal("a bearer token is required (-token or GEOLYZE_TOKEN)")
	}
	if *geoID == "" && *jobID == "" {
		log.Fatal("either -geo or -job is required")
	}

	client := &gatewayClient{baseURL: strings.TrimRight(*gatewayURL, "/"), bearer: bearer}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Interrupted, stopping watch")
		cancel()
	}()

	watchID := *jobID
	if *geoID != "" {
		normalized, err := dto.NormalizeGeoID(*geoID)
		if err != nil {
			log.Fatalf("Invalid accession: %v", err)
		}
		ref, err := client.submit(ctx, normalized)
		if err != nil {
			log.Fatalf("Submission failed: %v", err)
		}
		log.Printf("Submitted %s, job %s", normalized, ref.ID)
		watchID = ref.ID
	}

	p := poller.New(func(ctx context.Context) (*poller.Snapshot, error) {
		return client.fetchStatus(ctx, watchID)
	}, *interval)
	p.OnUpdate = func(snap *poller.Snapshot) {
		printProgress(snap, p.FailureIndex())
	}
	p.OnCompleted = func(snap *poller.Snapshot) {
		// The web client's one-time redirect to the results view
		fmt.Printf("\nResults: %s/results/%s\n", *gatewayURL, snap.JobID)
	}

	snap, err := p.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Fatalf("Watch stopped: %v", err)
	}

	if snap.Status == model.StatusFailed {
		fmt.Printf("\n%s\n", poller.FailureMessage(snap.Error))
		os.Exit(1)
	}

	if err := printResults(ctx, client, watchID); err != nil {
		log.Fatalf("Failed to fetch results: %v", err)
	}
}

func printProgress(snap *poller.Snapshot, failureIdx int) {
	states := poller.StepStates(snap.Status, failureIdx)
	marks := make([]string, len(states))
	for i, state := range states {
		switch state {
		case poller.StepComplete:
			marks[i] = "[x]"
		case poller.StepActive:
			marks[i] = "[>]"
		default:
			marks[i] = "[ ]"
		}
	}
	fmt.Printf("%s %s %3d%% %s\n", strings.Join(marks, " "), snap.Status, snap.Progress, snap.Message)
}

func printResults(ctx context.Context, client *gatewayClient, jobID string) error {
	resultData, err := client.fetchResults(ctx, jobID)
	if err != nil {
		return err
	}

	plots := results.Project(resultData)
	fmt.Println("Available plots:")
	for _, key := range results.SurfaceKeys {
		plot := plots[key]
		if plot.Empty {
			fmt.Printf("  %-8s (not generated for this dataset)\n", key)
			continue
		}
		fmt.Printf("  %-8s %d traces\n", key, len(plot.Data))
	}
	return nil
}

// gatewayClient minimal client for the watch loop.
type gatewayClient struct {
	baseURL string
	bearer  string
	http    http.Client
}

func (c *gatewayClient) submit(ctx context.Context, geoID string) (*dto.JobRef, error) {
	body, _ := json.Marshal(dto.AnalyzeRequest{GeoID: geoID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var ref dto.JobRef
	if err := c.do(req, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

func (c *gatewayClient) fetchStatus(ctx context.Context, jobID string) (*poller.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/analyze/status?jobId="+jobID, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		JobID    string `json:"job_id"`
		Status   string `json:"status"`
		Progress int    `json:"progress"`
		Message  string `json:"message"`
		Error    string `json:"error"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return &poller.Snapshot{
		JobID:    payload.JobID,
		Status:   payload.Status,
		Progress: payload.Progress,
		Message:  payload.Message,
		Error:    payload.Error,
	}, nil
}

func (c *gatewayClient) fetchResults(ctx context.Context, jobID string) (model.JSONMap, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/analyze/results?jobId="+jobID, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		ResultData model.JSONMap `json:"result_data"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return payload.ResultData, nil
}

func (c *gatewayClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Detail == "" {
			body.Detail = resp.Status
		}
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, body.Detail)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
