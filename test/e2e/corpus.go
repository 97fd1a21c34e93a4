// Package e2e drives the full upload and ask flow over HTTP against a corpus
// of generated handbook PDFs.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/pdfinsight/internal/extract/pdftest"
)

// Handbook is one generated PDF: a file name and one text entry per page.
type Handbook struct {
	Filename string
	Pages    []string
}

// PDF renders the handbook as PDF bytes.
func (h Handbook) PDF() []byte {
	return pdftest.Build(h.Pages...)
}

// QuestionCase is a question about one handbook and the page that answers it.
type QuestionCase struct {
	Handbook     int
	Question     string
	ExpectedPage int
	Description  string
}

// Corpus holds handbooks and the question cases that target them.
type Corpus struct {
	Handbooks []Handbook
	Cases     []QuestionCase
}

// pagesPerHandbook topics go into each handbook, one per page.
const pagesPerHandbook = 3

type topic struct {
	title   string
	phrase  string
	content string
}

var topics = []topic{
	{"Refunds", "refund window receipt", "Refunds are issued to the original card. The refund window receipt rule requires proof of purchase within thirty days."},
	{"Shipping", "courier dispatch tracking", "Orders leave the warehouse each morning. Courier dispatch tracking numbers are emailed once the parcel is scanned."},
	{"Warranty", "warranty claim repair", "Hardware carries a two year guarantee. A warranty claim repair is booked through the service desk."},
	{"Annual Leave", "annual leave carryover", "Staff accrue twenty days of leave. Annual leave carryover is capped at five days per calendar year."},
	{"Sick Leave", "sick leave certificate", "Notify your manager before the shift starts. Sick leave certificate from a doctor is needed after three days."},
	{"Parental Leave", "parental leave weeks", "New parents may take paid time off. Parental leave weeks can be split into two blocks."},
	{"Expenses", "expense report mileage", "Business costs are reimbursed monthly. The expense report mileage rate follows the national tariff."},
	{"Travel", "travel booking economy", "All trips are booked through the portal. Travel booking economy class applies to flights under six hours."},
	{"Per Diem", "per diem meals allowance", "Meals abroad are covered by a flat rate. The per diem meals allowance depends on the destination city."},
	{"Passwords", "password rotation length", "Accounts use single sign on. Password rotation length rules demand sixteen characters and yearly changes."},
	{"Laptops", "laptop encryption disk", "Company laptops are managed centrally. Laptop encryption disk settings must never be disabled."},
	{"Phishing", "phishing report button", "Suspicious mail must not be opened. Use the phishing report button in the mail client toolbar."},
	{"Onboarding", "onboarding buddy checklist", "New hires receive equipment on day one. The onboarding buddy checklist covers accounts and introductions."},
	{"Probation", "probation review month", "Every contract starts with a trial period. The probation review month is the sixth month of employment."},
	{"Promotions", "promotion cycle calibration", "Career growth is reviewed twice a year. The promotion cycle calibration meeting ranks all nominations."},
	{"Remote Work", "remote work stipend", "Employees may work from home three days a week. The remote work stipend covers internet and a chair."},
	{"Office Hours", "core hours flexible", "The office opens at seven. Core hours flexible scheduling requires presence from ten until three."},
	{"Parking", "parking permit garage", "Spaces are limited and shared. A parking permit garage pass is issued by facilities on request."},
	{"Safety", "fire drill assembly", "Evacuation routes are posted on every floor. The fire drill assembly point is the north car park."},
	{"First Aid", "first aid kit", "Injuries must be logged the same day. Every floor has a first aid kit beside the lifts."},
	{"Visitors", "visitor badge escort", "Guests sign in at reception. A visitor badge escort must accompany them at all times."},
	{"Pensions", "pension contribution match", "Retirement savings start after probation. The pension contribution match is five percent of salary."},
	{"Health Insurance", "health insurance dental", "Medical cover includes family members. Health insurance dental plans reimburse two checkups a year."},
	{"Training", "training budget conference", "Learning is encouraged for everyone. The training budget conference allowance is one event per year."},
}

// BuildCorpus returns handbooks of three topic pages each and one question per page.
func BuildCorpus() *Corpus {
	c := &Corpus{}
	for start := 0; start+pagesPerHandbook <= len(topics); start += pagesPerHandbook {
		h := Handbook{Filename: fmt.Sprintf("handbook_%02d.pdf", len(c.Handbooks)+1)}
		for i := 0; i < pagesPerHandbook; i++ {
			t := topics[start+i]
			h.Pages = append(h.Pages, t.title+". "+t.content)
			c.Cases = append(c.Cases, QuestionCase{
				Handbook:     len(c.Handbooks),
				Question:     "Tell me about " + t.phrase,
				ExpectedPage: i + 1,
				Description:  fmt.Sprintf("%s page %d %s", h.Filename, i+1, strings.ToLower(t.title)),
			})
		}
		c.Handbooks = append(c.Handbooks, h)
	}
	return c
}
