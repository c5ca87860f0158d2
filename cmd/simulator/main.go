package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"liyu1981.xyz/water-quality-monitor/pkg/quality"
)

var httpHostPort string = "127.0.0.1:1080"
var rounds int = 20
var pause time.Duration = 2 * time.Second

var rnd *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
var rndMu sync.Mutex

func main() {
	flag.StringVar(&httpHostPort, "addr", httpHostPort, "monitor http host:port")
	flag.IntVar(&rounds, "rounds", rounds, "readings to post per sensor")
	flag.DurationVar(&pause, "pause", pause, "pause between readings")
	flag.Parse()

	client := resty.New().
		SetBaseURL("http://"+httpHostPort).
		SetTimeout(5*time.Second).
		SetHeader("Content-Type", "application/json")

	resp, err := client.R().Get("/healthz")
	if err != nil {
		log.Fatal("Failed to connect to HTTP server:", err)
	}
	if resp.StatusCode() != http.StatusOK {
		log.Fatal("HTTP server not available")
	}

	fmt.Printf("http server verified\n")

	startTime := time.Now()
	wg := sync.WaitGroup{}
	for _, profile := range quality.Profiles() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rounds {
				postReading(client, profile, i)
				time.Sleep(pause)
			}
		}()
	}
	wg.Wait()
	usedTime := time.Since(startTime)

	fmt.Printf(
		"\nposted %v readings for %v sensors: used time=%v seconds\n",
		rounds, len(quality.Profiles()), usedTime.Seconds(),
	)
}

func rndFloat64(min, max float64, decimal int) float64 {
	rndMu.Lock()
	val := min + rnd.Float64()*(max-min)
	rndMu.Unlock()
	multiplier := math.Pow10(decimal)
	return math.Round(val*multiplier) / multiplier
}

func rndInt(n int32) int32 {
	rndMu.Lock()
	defer rndMu.Unlock()
	return rnd.Int31n(n)
}

// timestampFor rotates through the encodings sensors are known to write.
func timestampFor(now time.Time, round int) any {
	switch round % 3 {
	case 0:
		return now.Format(time.RFC3339)
	case 1:
		return now.UnixMilli()
	default:
		return map[string]int64{
			"seconds":     now.Unix(),
			"nanoseconds": int64(now.Nanosecond()),
		}
	}
}

func postReading(client *resty.Client, profile quality.SensorProfile, round int) {
	// a wider band than the healthy range so alerts show up
	span := profile.Upper - profile.Lower
	var value any = rndFloat64(profile.Lower-span/2, profile.Upper+span/2, 2)
	if rndInt(20) == 0 {
		value = "ERR"
	}

	payload := map[string]any{
		"sensor_id": profile.SensorID,
		"value":     value,
		"timestamp": timestampFor(time.Now(), round),
	}

	resp, err := client.R().SetBody(payload).Post("/datalog")
	if err != nil {
		fmt.Printf("\nerror: %v\n", err)
		return
	}
	if resp.StatusCode() != http.StatusCreated {
		fmt.Printf("\nresponse status code != 201: %v %s\n", resp.StatusCode(), resp.String())
		return
	}
	fmt.Printf("\rposted reading %v for sensor %v: %v", round, profile.Key, value)
}
