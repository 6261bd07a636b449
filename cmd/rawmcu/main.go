package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/qix67/rawmcu_go/rawmcu/planar"
)

func main() {
	quality := flag.Int("q", 75, "Compression effort 0-100 (encode only)")
	output := flag.String("o", "", "Output path (default: input with swapped extension)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-q quality] [-o output] <input>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Encodes an image to .pmcu, or decodes a .pmcu file back to PNG.")
		os.Exit(1)
	}
	input := flag.Arg(0)

	var err error
	if strings.HasSuffix(strings.ToLower(input), ".pmcu") {
		err = decodeFile(input, outPath(input, *output, ".png"))
	} else {
		err = encodeFile(input, outPath(input, *output, ".pmcu"), *quality)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func outPath(input, override, ext string) string {
	if override != "" {
		return override
	}
	base := input
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base + ext
}

func encodeFile(input, output string, quality int) error {
	in, err := os.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()
	img, _, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", input, err)
	}

	out, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := planar.EncodeImage(out, img, quality); err != nil {
		out.Close()
		os.Remove(output)
		return fmt.Errorf("encoding %s: %w", output, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", input, output)
	return nil
}

func decodeFile(input, output string) error {
	in, err := os.Open(input)
	if err != nil {
		return err
	}
	// DecodeImage closes the reader when the session releases it.
	img, err := planar.DecodeImage(in)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", input, err)
	}

	out, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		os.Remove(output)
		return fmt.Errorf("encoding %s: %w", output, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Printf("%s -> %s (%dx%d)\n", input, output, img.Bounds().Dx(), img.Bounds().Dy())
	return nil
}
