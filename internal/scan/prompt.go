package scan

import (
	"fmt"
	"strings"
)

const (
	// PublicReceiptText is the only message the agent may publish to the public channel.
	PublicReceiptText = "ClawAudit scan complete. Vulnerabilities detected and sent securely to developer."

	// FindingsHeading opens the findings section of the agent's report.
	FindingsHeading = "## Findings"

	manualFocusConstant = "Standard audit of the submitted contract. Report every critical and high severity issue."
	demoFocusConstant   = "Demonstration run. Keep the report brief and lead with the most severe issue."
	fullFocusConstant   = "Exhaustive audit. Cover every function, including medium and low severity issues and gas concerns."

	contractAddressLineTemplate = "Deployed contract address: %s\n"

	scanPromptTemplate = `You are an elite smart contract security auditor. Read the following Solidity code and identify any critical vulnerabilities (e.g. Reentrancy, Access Control flaws, Overflow risks).

Scan focus: %s
%s
Code to analyze:
%s

You MUST follow the Sanitized Receipt security model and complete these steps in order:

1. STANDARD OUTPUT (for the developer UI): write the full vulnerability report under a "%s" heading. List each finding with severity, location, and remediation.

2. DEVELOPER CHANNEL (use your 'telegram' skill): send the complete audit trail, including every finding and the affected locations.

3. PUBLIC RECEIPT (use your 'moltbook' skill for the '%s' submolt): only after step 2 succeeded, post a single generic status message. Do NOT post code, code snippets, or vulnerability specifics. Use exactly this text: "%s"

Full details belong in your reply and the developer channel. The public channel receives the generic status only.`
)

func kindFocus(kind Kind) string {
	switch kind {
	case KindDemo:
		return demoFocusConstant
	case KindFull:
		return fullFocusConstant
	default:
		return manualFocusConstant
	}
}

// composePrompt embeds the source in the audit instruction. Channel credentials never appear in
// the prompt; the agent's skills read them from the environment.
func composePrompt(request Request, submolt string) string {
	addressLine := ""
	if len(request.ContractAddress) > 0 {
		addressLine = fmt.Sprintf(contractAddressLineTemplate, request.ContractAddress)
	}
	return fmt.Sprintf(
		scanPromptTemplate,
		kindFocus(request.Kind),
		addressLine,
		strings.TrimSpace(request.SourceCode),
		FindingsHeading,
		submolt,
		PublicReceiptText,
	)
}
