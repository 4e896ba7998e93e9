package ui

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"
)

// PrintQR renders a QR code to the terminal as compact half-block rows.
// Low error correction keeps the matrix small enough for narrow terminals.
func PrintQR(s string) error {
	qr, err := qrcode.New(s, qrcode.Low)
	if err != nil {
		return err
	}
	qr.DisableBorder = true

	bm := qr.Bitmap()
	w := len(bm[0])
	if cols := detectTerminalColumns(); cols > 0 && w > cols {
		fmt.Fprintf(os.Stdout, "(QR width %d exceeds terminal columns %d)\n", w, cols)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for y := 0; y < len(bm); y += 2 {
		for x := 0; x < w; x++ {
			top := bm[y][x]
			bottom := false
			if y+1 < len(bm) {
				bottom = bm[y+1][x]
			}
			out.WriteRune(pixel(top, bottom))
		}
		out.WriteRune('\n')
	}
	return nil
}

func pixel(top, bottom bool) rune {
	switch {
	case top && bottom:
		return '█'
	case top:
		return '▀'
	case bottom:
		return '▄'
	default:
		return ' '
	}
}

func detectTerminalColumns() int {
	s := os.Getenv("COLUMNS")
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
