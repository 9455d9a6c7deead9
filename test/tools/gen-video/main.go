// Generates small MP4 fixtures with ffmpeg's testsrc2 source for manual
// end-to-end runs of cmd/scrub. Hermetic tests never touch these; the
// synthetic backend covers them. Fixtures land in test/fixtures.
//
// Usage:
//
//	go run ./test/tools/gen-video
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

type VideoConfig struct {
	Name        string  `json:"name"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Rate        string  `json:"rate"`
	DurationSec float64 `json:"durationSec"`
	GOP         int     `json:"gop"`
	Fragmented  bool    `json:"fragmented,omitempty"`
	Description string  `json:"description"`
}

type Manifest struct {
	Generated string        `json:"generated"`
	Videos    []VideoConfig `json:"videos"`
}

var videos = []VideoConfig{
	{
		Name: "cfr_30", Width: 1280, Height: 720, Rate: "30", DurationSec: 10, GOP: 30,
		Description: "10s 30fps, keyframe every second",
	},
	{
		Name: "ntsc", Width: 640, Height: 360, Rate: "30000/1001", DurationSec: 10, GOP: 60,
		Description: "NTSC 29.97fps, keyframe every two seconds",
	},
	{
		Name: "long_gop", Width: 640, Height: 360, Rate: "25", DurationSec: 30, GOP: 250,
		Description: "30s 25fps with 10s GOPs, worst-case seek cost",
	},
	{
		Name: "all_intra", Width: 320, Height: 180, Rate: "30", DurationSec: 5, GOP: 1,
		Description: "every frame a keyframe",
	},
	{
		Name: "fragmented", Width: 320, Height: 180, Rate: "30", DurationSec: 5, GOP: 30, Fragmented: true,
		Description: "fragmented MP4, sample tables live in moof boxes",
	},
}

func main() {
	checkDeps()

	rootDir := findProjectRoot()
	fixturesDir := filepath.Join(rootDir, "test", "fixtures")
	if err := os.MkdirAll(fixturesDir, 0755); err != nil {
		fatal("create fixtures dir: %v", err)
	}

	fmt.Printf("Generating %d fixtures in %s\n", len(videos), fixturesDir)

	for _, vc := range videos {
		outFile := filepath.Join(fixturesDir, vc.Name+".mp4")
		if fileExists(outFile) {
			fmt.Printf("  %s: already exists, skipping\n", vc.Name)
			continue
		}
		fmt.Printf("  %s: %s\n", vc.Name, vc.Description)
		if err := encodeVideo(vc, outFile); err != nil {
			fatal("encode %s: %v", vc.Name, err)
		}
		info, _ := os.Stat(outFile)
		if info != nil {
			fmt.Printf("    %s (%.1f MB)\n", outFile, float64(info.Size())/1024/1024)
		}
	}

	manifestFile := filepath.Join(fixturesDir, "manifest.json")
	if err := writeManifest(manifestFile); err != nil {
		fatal("write manifest: %v", err)
	}
	fmt.Printf("Done, fixtures in %s\n", fixturesDir)
}

func encodeVideo(vc VideoConfig, output string) error {
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc2=size=%dx%d:rate=%s", vc.Width, vc.Height, vc.Rate),
		"-t", fmt.Sprintf("%.2f", vc.DurationSec),

		"-c:v", "libx264",
		"-preset", "veryfast",
		"-g", fmt.Sprintf("%d", vc.GOP),
		"-keyint_min", fmt.Sprintf("%d", vc.GOP),
		"-sc_threshold", "0",
		"-pix_fmt", "yuv420p",
	}
	if vc.Fragmented {
		args = append(args, "-movflags", "frag_keyframe+empty_moov")
	} else {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, output)

	cmd := exec.Command("ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w\n%s", err, string(out))
	}
	return nil
}

func checkDeps() {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		fatal("ffmpeg not found in PATH. Install with: brew install ffmpeg")
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		fatal("getwd: %v", err)
	}
	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			fatal("could not find project root (no go.mod found)")
		}
		dir = parent
	}
}

func writeManifest(path string) error {
	m := Manifest{
		Generated: time.Now().UTC().Format(time.RFC3339),
		Videos:    videos,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
