// Traffic simulator for exercising FraudLens against realistic spend patterns.
//
// Usage:
//   go run cmd/simulator/main.go -url http://localhost:8080 -count 200 -rate 10
//
// This tool:
//   1. Optionally seeds the knowledge base with known fraud signatures
//   2. Generates transactions from a merchant/narrative pool, mixing in
//      organic behavioral and signature fraud scenarios
//   3. Posts each transaction to the scoring API
//   4. Tallies risk levels and statuses and prints a summary
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// merchant is a simulated merchant with a rough riskiness weight.
type merchant struct {
	Name string
	ID   string
	Risk float64
}

var merchants = []merchant{
	{Name: "Uber Rides", ID: "M_UBER_001", Risk: 0.1},
	{Name: "Starbucks", ID: "M_SBX_992", Risk: 0.1},
	{Name: "Apple Store", ID: "M_APL_554", Risk: 0.2},
	{Name: "Unknown Crypto Ex", ID: "M_CRYP_666", Risk: 0.9},
	{Name: "Medi-Global", ID: "M_MEDI_112", Risk: 0.8},
	{Name: "Luxury Watches Int", ID: "M_LUX_888", Risk: 0.6},
	{Name: "Local Grocery", ID: "M_GROC_123", Risk: 0.05},
}

var narratives = []string{
	"Ride to work",
	"Morning coffee",
	"MacBook Pro purchase",
	"Urgent transfer for medical supplies",
	"Immediate withdrawal",
	"Consulting services",
	"Refund verification fee",
	"Weekly groceries",
}

// seedCases are known fraud signatures loaded via -seed.
var seedCases = []fraudCase{
	{Merchant: "Medi-Global", Narrative: "Urgent transfer for medical supplies", Type: "CONFIRMED_FRAUD"},
	{Merchant: "Unknown Crypto Ex", Narrative: "Refund verification fee", Type: "CONFIRMED_FRAUD"},
}

// rawTransaction mirrors the scoring API request body.
type rawTransaction struct {
	UserID     string  `json:"userId"`
	Amount     float64 `json:"amount"`
	Merchant   string  `json:"merchant"`
	MerchantID string  `json:"merchantId"`
	Narrative  string  `json:"narrative"`
	Location   string  `json:"location,omitempty"`
	IP         string  `json:"ip,omitempty"`
}

// fraudCase mirrors the knowledge base API payload.
type fraudCase struct {
	ID        string `json:"id,omitempty"`
	Merchant  string `json:"merchant"`
	Narrative string `json:"narrative"`
	Type      string `json:"type,omitempty"`
}

// scoreResponse mirrors the scoring API response.
type scoreResponse struct {
	Transaction struct {
		ID                  string  `json:"id"`
		Amount              float64 `json:"amount"`
		Merchant            string  `json:"merchant"`
		ZScore              float64 `json:"zScore"`
		SignatureMatchScore float64 `json:"signatureMatchScore"`
		RiskLevel           string  `json:"riskLevel"`
		Status              string  `json:"status"`
	} `json:"transaction"`
}

// profileResponse mirrors GET /profiles/{userId}.
type profileResponse struct {
	Profile struct {
		Mean   float64 `json:"mean"`
		StdDev float64 `json:"stdDev"`
	} `json:"profile"`
}

// tally accumulates scoring outcomes.
type tally struct {
	Total    int64
	Errors   int64
	Low      int64
	Medium   int64
	Critical int64
	Allowed  int64
	Pending  int64
	Flagged  int64
	FraudGen int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "FraudLens base URL")
	userID := flag.String("user", "sim-user-001", "User ID to simulate")
	count := flag.Int("count", 100, "Number of transactions to send")
	rate := flag.Float64("rate", 5, "Transactions per second")
	workers := flag.Int("workers", 4, "Number of concurrent senders")
	fraudType := flag.String("fraud", "", "Force fraud type: behavioral or signature (default: 15% organic mix)")
	seedKB := flag.Bool("seed", true, "Seed the knowledge base with known fraud signatures")
	warmup := flag.Int("warmup", 20, "Benign transactions sent first to establish a baseline")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *fraudType != "" && *fraudType != "behavioral" && *fraudType != "signature" {
		fmt.Println("Usage: simulator [-url http://localhost:8080] [-fraud behavioral|signature]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            FRAUDLENS SIMULATOR - Synthetic Traffic            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nFraudLens URL:  %s\n", *baseURL)
	fmt.Printf("User ID:        %s\n", *userID)
	fmt.Printf("Count:          %d (+%d warmup)\n", *count, *warmup)
	fmt.Printf("Rate:           %.1f tx/sec\n", *rate)
	fmt.Printf("Workers:        %d\n", *workers)
	if *fraudType != "" {
		fmt.Printf("Fraud type:     %s (forced)\n", *fraudType)
	} else {
		fmt.Println("Fraud type:     organic mix (~15%)")
	}
	fmt.Println()

	client := &http.Client{Timeout: 10 * time.Second}

	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: FraudLens not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure FraudLens is running:")
		fmt.Println("  go run cmd/fraudlens/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ FraudLens is healthy")

	if *seedKB {
		seeded := seedKnowledgeBase(client, *baseURL)
		fmt.Printf("✓ Seeded %d knowledge base cases\n", seeded)
	}

	// Establish a spending baseline so behavioral spikes stand out.
	fmt.Printf("\nSending %d warmup transactions...\n", *warmup)
	for i := 0; i < *warmup; i++ {
		tx := benignTransaction(*userID, 100)
		postTransaction(client, *baseURL, tx)
	}

	profile := fetchProfile(client, *baseURL, *userID)
	fmt.Printf("✓ Baseline established: mean=%.2f stdDev=%.2f\n", profile.Mean, profile.StdDev)

	fmt.Printf("\nSending %d transactions with %d workers...\n", *count, *workers)
	startTime := time.Now()
	results := runSimulation(client, *baseURL, *userID, *count, *rate, *workers, *fraudType, profile, *verbose)
	duration := time.Since(startTime)

	printResults(results, duration)
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func seedKnowledgeBase(client *http.Client, baseURL string) int {
	seeded := 0
	for _, c := range seedCases {
		body, _ := json.Marshal(c)
		resp, err := client.Post(baseURL+"/knowledge", "application/json", bytes.NewReader(body))
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusCreated {
			seeded++
		}
	}
	return seeded
}

type baseline struct {
	Mean   float64
	StdDev float64
}

func fetchProfile(client *http.Client, baseURL, userID string) baseline {
	resp, err := client.Get(baseURL + "/profiles/" + userID)
	if err != nil {
		return baseline{Mean: 100}
	}
	defer resp.Body.Close()

	var parsed profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return baseline{Mean: 100}
	}
	if parsed.Profile.Mean == 0 {
		return baseline{Mean: 100}
	}
	return baseline{Mean: parsed.Profile.Mean, StdDev: parsed.Profile.StdDev}
}

// benignTransaction produces a normal low-risk spend.
func benignTransaction(userID string, mean float64) rawTransaction {
	// Low-risk merchants only
	var safe []merchant
	for _, m := range merchants {
		if m.Risk < 0.3 {
			safe = append(safe, m)
		}
	}
	m := safe[rand.Intn(len(safe))]

	amount := mean + (rand.Float64()-0.5)*mean*0.3
	if amount < 10 {
		amount = 10
	}

	return rawTransaction{
		UserID:     userID,
		Amount:     round2(amount),
		Merchant:   m.Name,
		MerchantID: m.ID,
		Narrative:  narratives[rand.Intn(len(narratives))],
		Location:   "New York, US",
		IP:         fmt.Sprintf("192.168.%d.1", rand.Intn(255)),
	}
}

// behavioralFraud produces a large spike over the user's baseline.
func behavioralFraud(userID string, profile baseline) rawTransaction {
	m := merchants[rand.Intn(len(merchants))]
	return rawTransaction{
		UserID:     userID,
		Amount:     round2(profile.Mean * (5 + rand.Float64()*5)),
		Merchant:   m.Name,
		MerchantID: m.ID,
		Narrative:  "High value purchase",
		Location:   "New York, US",
		IP:         fmt.Sprintf("192.168.%d.1", rand.Intn(255)),
	}
}

// signatureFraud clones a known fraud case at a normal amount.
func signatureFraud(userID string, profile baseline) rawTransaction {
	c := seedCases[rand.Intn(len(seedCases))]
	return rawTransaction{
		UserID:     userID,
		Amount:     round2(profile.Mean * (0.5 + rand.Float64())),
		Merchant:   c.Merchant,
		MerchantID: "M_CLONED_99",
		Narrative:  c.Narrative,
		Location:   "New York, US",
		IP:         fmt.Sprintf("192.168.%d.1", rand.Intn(255)),
	}
}

func runSimulation(client *http.Client, baseURL, userID string, count int, rate float64, numWorkers int, fraudType string, profile baseline, verbose bool) *tally {
	results := &tally{}

	work := make(chan rawTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tx := range work {
				result, err := postTransaction(client, baseURL, tx)
				atomic.AddInt64(&results.Total, 1)
				if err != nil {
					atomic.AddInt64(&results.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.Merchant, err)
					}
					continue
				}

				switch result.Transaction.RiskLevel {
				case "CRITICAL":
					atomic.AddInt64(&results.Critical, 1)
				case "MEDIUM":
					atomic.AddInt64(&results.Medium, 1)
				default:
					atomic.AddInt64(&results.Low, 1)
				}
				switch result.Transaction.Status {
				case "PENDING":
					atomic.AddInt64(&results.Pending, 1)
				case "FLAGGED":
					atomic.AddInt64(&results.Flagged, 1)
				default:
					atomic.AddInt64(&results.Allowed, 1)
				}

				if verbose {
					fmt.Printf("  %-20s | $%10.2f | z=%5.2f sig=%.2f | %-8s %s\n",
						result.Transaction.Merchant,
						result.Transaction.Amount,
						result.Transaction.ZScore,
						result.Transaction.SignatureMatchScore,
						result.Transaction.RiskLevel,
						result.Transaction.Status,
					)
				}
			}
		}()
	}

	interval := time.Duration(float64(time.Second) / rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < count; i++ {
		<-ticker.C

		var tx rawTransaction
		isFraud := fraudType != "" || rand.Float64() > 0.85
		if isFraud {
			atomic.AddInt64(&results.FraudGen, 1)
			scenario := fraudType
			if scenario == "" {
				if rand.Float64() > 0.5 {
					scenario = "behavioral"
				} else {
					scenario = "signature"
				}
			}
			if scenario == "behavioral" {
				tx = behavioralFraud(userID, profile)
			} else {
				tx = signatureFraud(userID, profile)
			}
		} else {
			tx = benignTransaction(userID, profile.Mean)
		}

		work <- tx
	}
	close(work)

	wg.Wait()
	return results
}

func postTransaction(client *http.Client, baseURL string, tx rawTransaction) (*scoreResponse, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/transactions", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func round2(v float64) float64 {
	return float64(int(v*100)) / 100
}

func printResults(r *tally, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      SIMULATION RESULTS                       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 TRAFFIC\n")
	fmt.Printf("   Total Sent:       %d\n", r.Total)
	fmt.Printf("   Fraud Generated:  %d\n", r.FraudGen)
	fmt.Printf("   Errors:           %d\n", r.Errors)

	fmt.Printf("\n🎯 RISK LEVELS\n")
	fmt.Printf("   LOW:       %d\n", r.Low)
	fmt.Printf("   MEDIUM:    %d\n", r.Medium)
	fmt.Printf("   CRITICAL:  %d\n", r.Critical)

	fmt.Printf("\n📋 STATUSES\n")
	fmt.Printf("   ALLOWED:   %d\n", r.Allowed)
	fmt.Printf("   PENDING:   %d\n", r.Pending)
	fmt.Printf("   FLAGGED:   %d\n", r.Flagged)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:  %v\n", duration.Round(time.Millisecond))
	if r.Total > 0 && duration.Seconds() > 0 {
		fmt.Printf("   Throughput:      %.2f tx/sec\n", float64(r.Total)/duration.Seconds())
	}
	fmt.Println()
}
