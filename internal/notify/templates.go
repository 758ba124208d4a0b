package notify

import (
	"fmt"
	"strings"
)

// Penalty emails are intentionally rude. The %s/%d slots are, in order:
// name, quantity, symbol, amount, closing remark.
var penaltyTemplates = []string{
	"<p>Hey %s,</p><p>Since solving your problems was apparently too much effort, we went shopping for you: <b>%d shares of %s</b> for about &#8377;%.2f.</p><p>%s</p>",
	"<p>%s,</p><p>Congratulations on doing absolutely nothing today. Your reward is <b>%d x %s</b> (&#8377;%.2f) now sitting in your portfolio.</p><p>%s</p>",
	"<p>Dear %s,</p><p>Your streak died, so your money went to work instead. Bought <b>%d of %s</b> at roughly &#8377;%.2f.</p><p>%s</p>",
	"<p>%s,</p><p>We warned you. <b>%d shares of %s</b>, &#8377;%.2f, no refunds.</p><p>%s</p>",
}

func renderPenalty(tmpl, name, symbol string, qty int, amount float64, amo bool) string {
	closing := "Maybe solve something tomorrow."
	if amo {
		closing = "Markets were closed, so this fills at tomorrow's open. Sleep well."
	}
	return fmt.Sprintf(tmpl, name, qty, symbol, amount, closing)
}

func renderReminder(name string, links []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hey %s,</p><p>Nothing solved yet today. Here is what's on your plate:</p><ul>", name)
	for _, l := range links {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, l, l)
	}
	b.WriteString("</ul><p>The clock does not care about your excuses.</p>")
	return b.String()
}
