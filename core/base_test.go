package core

import (
	"sync"
	"testing"

	"github.com/josephlewis42/rush/core/config"
	"github.com/stretchr/testify/assert"
)

func TestColorPrinter(t *testing.T) {
	cases := map[string]struct {
		mode string
		want string
	}{
		"always": {config.ColorAlways, "\x1b[31;1mfail\x1b[0m"},
		"never":  {config.ColorNever, "fail"},
		"auto":   {config.ColorAuto, "fail"},
	}
	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			p := NewColorPrinter(tc.mode, nil)

			assert.Equal(t, tc.want, p.Sprintf(ColorBoldRed, "%s", "fail"))
		})
	}
}

func TestColorPrinterConcurrent(t *testing.T) {
	p := NewColorPrinter(config.ColorAlways, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "\x1b[32;1mDone\x1b[0m", p.Sprintf(ColorBoldGreen, "Done"))
		}()
	}
	wg.Wait()
}
