// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package report renders calibration diagnostics as plain-text tables
// for terminals and logs.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/zintix-labs/monocal/calib"
	"github.com/zintix-labs/monocal/spec"
)

var lang language.Tag = language.English

// Calibration formats one calibration run as a boxed key/value table.
func Calibration(set *spec.CalibSetting, res *calib.Result) string {
	p := message.NewPrinter(lang)
	title := p.Sprintf("calibration: %s x %s", set.FactorA.Name, set.FactorB.Name)

	keys, msg := fmtBasic(set, res)
	return fmtTable(title, keys, msg)
}

// Write renders the table onto w.
func Write(w io.Writer, set *spec.CalibSetting, res *calib.Result) error {
	_, err := io.WriteString(w, Calibration(set, res))
	return err
}

func fmtBasic(set *spec.CalibSetting, res *calib.Result) ([]string, map[string]string) {
	p := message.NewPrinter(lang)
	info := res.Info
	basic := map[string]string{
		"Global Intercept": p.Sprintf("%.4f", res.GlobalIntercept),
		"RMSE":             p.Sprintf("%.4f", info.RMSE),
		"R2":               p.Sprintf("%.4f", info.R2),
		"Converged":        fmt.Sprintf("%t", info.Converged),
		"Iterations":       p.Sprintf("%d", info.NIterations),
		"A Monotone":       fmt.Sprintf("%t", info.AMonotone),
		"B Monotone":       fmt.Sprintf("%t", info.BMonotone),
		"A Anchor":         p.Sprintf("%g", info.AnchorA),
		"B Anchor":         p.Sprintf("%g", info.AnchorB),
		"A Spline R2":      p.Sprintf("%.4f", info.ASplineR2),
		"B Spline R2":      p.Sprintf("%.4f", info.BSplineR2),
		"A Levels":         p.Sprintf("%d", len(res.LevelsA)),
		"B Levels":         p.Sprintf("%d", len(res.LevelsB)),
	}
	keys := []string{
		"Global Intercept", "RMSE", "R2", "Converged", "Iterations",
		"A Monotone", "B Monotone", "A Anchor", "B Anchor",
		"A Spline R2", "B Spline R2", "A Levels", "B Levels",
	}
	return keys, basic
}

func fmtTable(title string, keys []string, msg map[string]string) string {
	p := message.NewPrinter(lang)
	maxKeyLen := 0
	maxValLen := 0
	for k, m := range msg {
		if w := runewidth.StringWidth(k); w > maxKeyLen {
			maxKeyLen = w
		}
		if w := runewidth.StringWidth(m); w > maxValLen {
			maxValLen = w
		}
	}
	maxKeyLen += 2
	maxValLen += 2

	divider := "+" + strings.Repeat("-", maxKeyLen) + "+" + strings.Repeat("-", maxValLen) + "+\n"
	top := "+" + strings.Repeat("-", maxKeyLen+1+maxValLen) + "+\n"

	totalInner := maxKeyLen + maxValLen + 1
	titleW := runewidth.StringWidth(title)

	left := (totalInner - titleW) / 2
	right := totalInner - titleW - left

	fmtStr := top
	fmtStr += p.Sprintf("|%s%s%s|\n", blank(left), title, blank(right))
	fmtStr += divider
	for _, k := range keys {
		fmtStr += p.Sprintf("| %s%s | %s%s |\n", k, blank(maxKeyLen-2-runewidth.StringWidth(k)), msg[k], blank(maxValLen-2-runewidth.StringWidth(msg[k])))
	}
	fmtStr += divider

	return fmtStr
}

func blank(w int) string {
	if w < 1 {
		return ""
	}
	return strings.Repeat(" ", w)
}
