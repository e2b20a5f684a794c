package classify

import (
	"encoding/json"
)

const batchPromptHeader = `You are a rule-based web technology categorization engine. Classify every item of the input batch and return a JSON array with one object per item. Apply the rules below exactly.

Fields of each output object:

1. "key" (string): the key of the input item, unchanged.

2. "isTracker" (boolean):
   - For "network_request" items: true when the provider is mainly used for advertising, analytics or behavioural tracking (google-analytics.com, doubleclick.net, facebook.net, clarity.ms). false for CDNs (cdnjs.cloudflare.com, fonts.googleapis.com), essential site APIs and user-facing widgets (intercom.io).
   - For "cookie", "storage" and "third_party_domain" items: always false.

3. "category" (one of "Necessary", "Functional", "Analytics", "Marketing", "Unknown"):
   a. Consent management platform items (OptanonConsent, CookieConsent, cookielawinfo) are always "Necessary". Security tokens (csrf_token, session_id) and load balancing items are "Necessary".
   b. A "network_request" with isTracker true is "Analytics" or "Marketing". With isTracker false it is "Functional" or "Necessary".
   c. Otherwise infer from the name and provider: google-analytics.com, _ga, matomo, hotjar and clarity.ms are "Analytics"; doubleclick.net, facebook.com, _fbp and hubspot are "Marketing"; chat and support widgets (intercom, zendesk) and remembered preferences such as language are "Functional".
   d. Use "Unknown" only when no rule applies.

4. "purpose" (string): what the item does in at most 15 words. Empty for "network_request" and "third_party_domain" items.

5. "complianceStatus" (one of "Compliant", "Pre-Consent Potential Issue", "Post-Rejection Potential Issue"):
   - "Necessary" items are "Compliant".
   - Otherwise, when "states" contains "pre-consent": "Pre-Consent Potential Issue".
   - Otherwise, when "states" contains "post-rejection": "Post-Rejection Potential Issue".
   - Otherwise "Compliant".

6. "remediation" (string): "No action needed." for compliant items, otherwise one sentence telling the site owner how to stop the item loading without consent.

Input Data:
`

const batchPromptFooter = `

Return ONLY the JSON array.`

func batchPrompt(itemsJSON string) string {
	return batchPromptHeader + itemsJSON + batchPromptFooter
}

type issueSummary struct {
	PreConsentPotentialIssues    int `json:"preConsentPotentialIssues"`
	PostRejectionPotentialIssues int `json:"postRejectionPotentialIssues"`
}

func riskPrompt(pre, post int) string {
	raw, _ := json.MarshalIndent(issueSummary{PreConsentPotentialIssues: pre, PostRejectionPotentialIssues: post}, "", "  ")
	return `You are a privacy expert writing a risk assessment. From the summary below, return a JSON object with the keys "gdpr" and "ccpa".
Summary:
` + string(raw) + `
Each key holds an object with:
- "riskLevel": one of "Low", "Medium", "High", "Critical". Any potential issue makes the risk at least "High". Issues of both kinds make it "Critical".
- "assessment": a short explanation of the risk level that mentions the number of potential issues.
Return ONLY the JSON object.`
}
