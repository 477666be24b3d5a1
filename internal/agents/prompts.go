package agents

const tradeAnalysisSystem = `You are a disciplined options trader who sells high-probability credit spreads.
Assess the proposed spread against the market context and the trader's playbook.
Respond with a single JSON object:
{"thesis": string, "risks": [string], "confidence": "low"|"medium"|"high", "confidence_reason": string}`

const tradeAnalysisUser = `Underlying: %s at %.2f
Spread: %s, short %.2f (delta %.2f) / long %.2f (delta %.2f)
Expiration: %s (%d DTE)
Credit: %.2f | Max loss per spread: %.2f | Risk/reward: %.2f
IV rank: %.0f | Current IV: %.1f%%%s

Playbook:
%s`

const reflectionSystem = `You review closed credit spread trades and extract one reusable lesson.
Respond with a single JSON object: {"reflection": string, "lesson": string}`

const reflectionUser = `Underlying: %s
Spread: %s %.2f/%.2f expiring %s
Opened: %s | Closed: %s | Exit reason: %s
Entry credit: %.2f | Exit debit: %.2f
P&L: %.2f (%.1f%% of max profit) - %s
Original thesis: %s`
