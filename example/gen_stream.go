package main

import (
	"bufio"
	"cwregen"
	"cwregen/Synth"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
)

// 生成合成样本流，供 cmd 回放:
//
//	go run ./example -out stream.csv.zst -text "CQ CQ DE BG1ABC"
//	go run ./cmd -file stream.csv.zst
//
// 不给 -text 时从控制台逐行读取，每行追加到流中。
func main() {
	out := flag.String("out", "stream.csv", "Output file (*.zst is compressed)")
	text := flag.String("text", "", "Text to encode")
	ditLen := flag.Int("dit", 8, "Ticks per dit")
	jitter := flag.Float64("jitter", 0, "Relative timing jitter")
	blur := flag.Int("blur", 5, "Hann blur length (0 disables)")
	noise := flag.Float64("noise", 0, "Uniform noise amplitude")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	gen, err := Synth.NewGenerator(Synth.Options{
		DitLen:      *ditLen,
		MaxElements: 5,
		Jitter:      *jitter,
		Blur:        *blur,
		Noise:       *noise,
		Seed:        *seed,
	})
	if err != nil {
		log.Fatalf("Generator failed: %v", err)
	}

	input := *text
	if input == "" {
		fmt.Println("Type text and press Enter. Empty line or 'exit' to finish.")
		scanner := bufio.NewScanner(os.Stdin)
		var lines []string
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.ToLower(line) == "exit" {
				break
			}
			lines = append(lines, line)
		}
		input = strings.Join(lines, " ")
	}

	frames, err := gen.Generate(input)
	if err != nil {
		log.Fatalf("Encode failed: %v", err)
	}
	if err := cwregen.WriteSampleFile(*out, frames); err != nil {
		log.Fatalf("Write failed: %v", err)
	}
	fmt.Printf("Wrote %d samples (%q) to %s\n", len(frames), strings.ToUpper(input), *out)
}
