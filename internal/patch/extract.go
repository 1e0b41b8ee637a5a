// Package patch finds corrected contract source embedded in an audit report.
package patch

import (
	"regexp"
	"strings"
)

const (
	solidityLanguageTagConstant = "solidity"
	fenceMarkerConstant         = "```"
)

var (
	labeledSectionPattern = regexp.MustCompile(`(?im)^[ \t]*#{2,3}[ \t]+(?:patched code|remediation)\b.*$`)
	fencedBlockPattern    = regexp.MustCompile("(?ms)^[ \\t]*```[ \\t]*([A-Za-z0-9_+-]*)[^\\n]*\\n(.*?)^[ \\t]*```")
	soliditySignatures    = regexp.MustCompile(`(?m)pragma\s+solidity|SPDX-License-Identifier|\bcontract\s+[A-Za-z_][A-Za-z0-9_]*`)
)

type fencedBlock struct {
	language string
	contents string
}

// Extract returns the corrected source carried by report, looking in order for:
// the first fenced block after a "## Patched code" or "## Remediation" heading (level two or
// three), then the first block tagged solidity, then the first untagged block whose contents
// look like Solidity. Empty blocks never qualify.
func Extract(report string) (string, bool) {
	if headingLocation := labeledSectionPattern.FindStringIndex(report); headingLocation != nil {
		for _, block := range fencedBlocks(report[headingLocation[1]:]) {
			if len(block.contents) > 0 {
				return block.contents, true
			}
		}
	}

	blocks := fencedBlocks(report)
	for _, block := range blocks {
		if block.language == solidityLanguageTagConstant && len(block.contents) > 0 {
			return block.contents, true
		}
	}
	for _, block := range blocks {
		if len(block.language) == 0 && len(block.contents) > 0 && soliditySignatures.MatchString(block.contents) {
			return block.contents, true
		}
	}
	return "", false
}

func fencedBlocks(text string) []fencedBlock {
	matches := fencedBlockPattern.FindAllStringSubmatch(text, -1)
	blocks := make([]fencedBlock, 0, len(matches))
	for _, match := range matches {
		blocks = append(blocks, fencedBlock{
			language: strings.ToLower(strings.TrimSpace(match[1])),
			contents: strings.TrimSpace(strings.TrimSuffix(match[2], fenceMarkerConstant)),
		})
	}
	return blocks
}
