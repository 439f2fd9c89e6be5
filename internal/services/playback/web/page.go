// Package web renders the server-side timeline pages for the playback
// service. Components are composed with templ and escape all scenario text.
package web

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/a-h/templ"

	"github.com/isoviz/isoviz/internal/playback"
	"github.com/isoviz/isoviz/internal/replay"
)

// Strings carries the localized UI labels a page needs.
type Strings struct {
	Title       string
	Scenarios   string
	Actors      string
	Operations  string
	Timeline    string
	Committed   string
	Staged      string
	Versions    string
	Rows        string
	ActorState  string
	Explanation string
}

// ActorCard summarizes one actor on the index page.
type ActorCard struct {
	ID         string
	Color      string
	Operations int
}

// ScenarioCard summarizes one scenario on the index page.
type ScenarioCard struct {
	ID      string
	Name    string
	Summary string
	Steps   int
	Actors  []ActorCard
}

// IndexData feeds the scenario index page.
type IndexData struct {
	Lang    string
	Strings Strings
	Cards   []ScenarioCard
}

// MomentView is a key moment with its prose already localized.
type MomentView struct {
	Step       int
	Title      string
	Body       string
	Highlights []string
	AutoPause  bool
}

// StateData feeds the timeline page for one scenario at one step.
type StateData struct {
	Lang     string
	Strings  Strings
	Scenario ScenarioCard
	Info     playback.Info
	State    *replay.State
	Moment   *MomentView
}

// Layout wraps body in the shared document shell.
func Layout(title, lang string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			`<!DOCTYPE html><html lang="%s"><head><meta charset="utf-8"><title>%s</title>`+
				`<meta name="viewport" content="width=device-width, initial-scale=1">`+
				`<style>%s</style></head><body><main class="shell">`,
			templ.EscapeString(lang), templ.EscapeString(title), baseCSS); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

// Index renders the scenario list page.
func Index(data IndexData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<h1>%s</h1><section class="cards">`,
			templ.EscapeString(data.Strings.Scenarios)); err != nil {
			return err
		}
		for _, card := range data.Cards {
			if err := scenarioCard(data.Strings, card).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</section>`)
		return err
	})
	return Layout(data.Strings.Title, data.Lang, body)
}

func scenarioCard(labels Strings, card ScenarioCard) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			`<article class="card" data-scenario="%s"><h2><a href="/scenarios/%s">%s</a></h2><p>%s</p>`,
			templ.EscapeString(card.ID), templ.EscapeString(card.ID),
			templ.EscapeString(card.Name), templ.EscapeString(card.Summary)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<p class="meta">%s: %d · %s:`,
			templ.EscapeString(labels.Operations), card.Steps,
			templ.EscapeString(labels.Actors)); err != nil {
			return err
		}
		for _, actor := range card.Actors {
			if _, err := fmt.Fprintf(w, ` <span class="actor" style="color:%s">%s</span>`,
				templ.EscapeString(actor.Color), templ.EscapeString(actor.ID)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</p></article>`)
		return err
	})
}

// StatePage renders one scenario's timeline at a specific step: markers for
// every step, the derived state tables, and the highlighted explanation.
func StatePage(data StateData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<h1>%s</h1>`, templ.EscapeString(data.Scenario.Name)); err != nil {
			return err
		}
		if err := timeline(data).Render(ctx, w); err != nil {
			return err
		}
		if err := stateTables(data).Render(ctx, w); err != nil {
			return err
		}
		if data.Moment != nil {
			if err := explanation(data.Strings, *data.Moment).Render(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
	return Layout(data.Scenario.Name, data.Lang, body)
}

func timeline(data StateData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<nav class="timeline" aria-label="%s">`,
			templ.EscapeString(data.Strings.Timeline)); err != nil {
			return err
		}
		for step := 0; step <= data.Info.Total; step++ {
			class := "marker"
			if step == data.Info.Step {
				class = "marker current"
			}
			if _, err := fmt.Fprintf(w,
				`<a class="%s" href="/scenarios/%s?step=%d">%d</a>`,
				class, templ.EscapeString(data.Scenario.ID), step, step); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</nav>`)
		return err
	})
}

func stateTables(data StateData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		state := data.State
		labels := data.Strings

		fmt.Fprintf(w, `<section class="state"><h2>%s</h2><table>`, templ.EscapeString(labels.Committed))
		for _, item := range sortedKeys(state.Committed) {
			fmt.Fprintf(w, `<tr><td>%s</td><td>%d</td></tr>`, templ.EscapeString(item), state.Committed[item])
		}
		io.WriteString(w, `</table>`)

		if len(state.Rows) > 0 {
			fmt.Fprintf(w, `<h2>%s</h2><table>`, templ.EscapeString(labels.Rows))
			for _, row := range state.Rows {
				fmt.Fprintf(w, `<tr><td>%d</td><td>%s</td><td>%s</td></tr>`,
					row.ID, templ.EscapeString(row.Name), templ.EscapeString(row.Dept))
			}
			io.WriteString(w, `</table>`)
		}

		if len(state.Versions) > 0 {
			fmt.Fprintf(w, `<h2>%s</h2><table>`, templ.EscapeString(labels.Versions))
			for _, item := range sortedKeys(state.Versions) {
				for _, v := range state.Versions[item] {
					fmt.Fprintf(w, `<tr><td>%s#%d</td><td>%d</td><td>cmin %d</td><td>cmax %d</td></tr>`,
						templ.EscapeString(item), v.ID, v.Value, v.Creator, v.Invalidator)
				}
			}
			io.WriteString(w, `</table>`)
		}

		fmt.Fprintf(w, `<h2>%s</h2><table>`, templ.EscapeString(labels.ActorState))
		for _, id := range state.ActorOrder {
			actor := state.Actors[id]
			fmt.Fprintf(w, `<tr><td>%s</td><td>%s</td><td>`,
				templ.EscapeString(id), templ.EscapeString(string(actor.Status)))
			for _, read := range actor.Reads {
				fmt.Fprintf(w, `<span class="read">%s=%d</span> `, templ.EscapeString(read.Item), read.Value)
			}
			for _, scan := range actor.Scans {
				fmt.Fprintf(w, `<span class="scan">%s×%d</span> `, templ.EscapeString(scan.Predicate), len(scan.Rows))
			}
			io.WriteString(w, `</td></tr>`)
		}
		_, err := io.WriteString(w, `</table></section>`)
		return err
	})
}

func explanation(labels Strings, moment MomentView) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<aside class="moment"><h2>%s</h2><h3>%s</h3><p>%s</p></aside>`,
			templ.EscapeString(labels.Explanation),
			templ.EscapeString(moment.Title),
			templ.EscapeString(moment.Body))
		return err
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

const baseCSS = `
body{font-family:system-ui,sans-serif;margin:0;background:#0f172a;color:#e2e8f0}
.shell{max-width:960px;margin:0 auto;padding:2rem 1rem}
.cards{display:grid;gap:1rem}
.card{background:#1e293b;border-radius:8px;padding:1rem}
.card a{color:#93c5fd;text-decoration:none}
.meta{color:#94a3b8;font-size:.9rem}
.timeline{display:flex;flex-wrap:wrap;gap:.25rem;margin:1rem 0}
.marker{padding:.25rem .6rem;border-radius:4px;background:#1e293b;color:#e2e8f0;text-decoration:none}
.marker.current{background:#2563eb}
table{border-collapse:collapse;margin:.5rem 0}
td{border:1px solid #334155;padding:.25rem .6rem}
.moment{border-left:4px solid #f59e0b;background:#1e293b;padding:1rem;margin-top:1rem}
`
