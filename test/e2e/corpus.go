// Package e2e runs the ingest and answer pipelines end to end over a generated corpus.
package e2e

import (
	"fmt"
	"strings"
)

// Article is one entry of the generated corpus.
type Article struct {
	Title string
	URL   string
	Date  string
	Body  string
}

// QueryTestCase is a question whose answer must cite the article with ExpectedURL.
type QueryTestCase struct {
	Question    string
	ExpectedURL string
	Description string
}

// Corpus holds generated articles and the questions asked of them.
type Corpus struct {
	Articles  []Article
	TestCases []QueryTestCase
}

var topics = []struct {
	title string
	body  string
}{
	{"The Quad and the Indo-Pacific", "The Quad brings together India, Japan, Australia and the United States around maritime security in the Indo-Pacific."},
	{"Critical Minerals Supply Chains", "Critical minerals such as lithium and cobalt shape the geopolitics of the energy transition."},
	{"Semiconductor Diplomacy", "Semiconductor fabrication capacity has become a lever of statecraft between major powers."},
	{"Arctic Shipping Routes", "Melting ice is opening Arctic shipping routes that shorten the voyage between Asia and Europe."},
	{"BRICS Expansion", "The expansion of BRICS adds new members and raises questions about a common development bank."},
	{"Water Disputes on the Brahmaputra", "Upstream dam projects on the Brahmaputra worry downstream states about seasonal water flows."},
	{"Space Debris Governance", "The growth of satellite constellations makes space debris governance an urgent multilateral concern."},
	{"Red Sea Maritime Security", "Attacks on merchant vessels in the Red Sea have rerouted trade around the Cape of Good Hope."},
	{"Digital Public Infrastructure", "Digital public infrastructure such as unified payments is being offered as a model to the Global South."},
	{"Climate Finance after COP", "Climate finance commitments remain short of what developing economies say they need for adaptation."},
	{"Central Asian Connectivity", "Rail and pipeline corridors through Central Asia compete to link China, Russia and Europe."},
	{"Undersea Cable Security", "Undersea cables carry most intercontinental data and are exposed to sabotage and espionage."},
	{"Food Security and Grain Corridors", "Grain corridors through the Black Sea affect food prices across Africa and West Asia."},
	{"Nuclear Energy Revival", "Small modular reactors are promoted as a way to revive nuclear energy with lower upfront cost."},
	{"Artificial Intelligence Regulation", "Governments are drafting artificial intelligence rules that balance innovation against systemic risk."},
	{"Himalayan Border Infrastructure", "Road and tunnel building along the Himalayan frontier changes the military balance at high altitude."},
	{"Sanctions and Payment Systems", "Financial sanctions have pushed several states to build alternative cross-border payment systems."},
	{"Indian Ocean Port Projects", "Port projects across the Indian Ocean are read as signals of strategic competition among naval powers."},
	{"Rare Earth Processing", "Rare earth processing remains concentrated in a few countries despite diversification efforts."},
	{"Pandemic Preparedness Treaty", "Negotiations on a pandemic preparedness treaty stall over pathogen access and benefit sharing."},
}

// BuildCorpus returns n articles with distinct URLs and bodies, plus one question per article
// that repeats the article body so a deterministic embedder retrieves it exactly.
func BuildCorpus(n int) *Corpus {
	c := &Corpus{}
	for i := 0; i < n; i++ {
		t := topics[i%len(topics)]
		a := Article{
			Title: fmt.Sprintf("%s (part %d)", t.title, i/len(topics)+1),
			URL:   fmt.Sprintf("https://www.thegeostrata.com/post/article-%03d", i),
			Date:  fmt.Sprintf("2024-%02d-%02d", i%12+1, i%28+1),
			Body:  fmt.Sprintf("%s Reference %03d.", t.body, i),
		}
		c.Articles = append(c.Articles, a)
		c.TestCases = append(c.TestCases, QueryTestCase{
			Question:    a.Body,
			ExpectedURL: a.URL,
			Description: fmt.Sprintf("article %03d", i),
		})
	}
	return c
}

// Render writes the articles in the delimited corpus file format.
func (c *Corpus) Render() string {
	blocks := make([]string, 0, len(c.Articles))
	for _, a := range c.Articles {
		blocks = append(blocks, fmt.Sprintf("Title: %s\nURL: %s\nDate: %s\n%s", a.Title, a.URL, a.Date, a.Body))
	}
	return strings.Join(blocks, "\n"+strings.Repeat("-", 50)+"\n") + "\n"
}
