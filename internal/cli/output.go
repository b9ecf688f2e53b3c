package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/ripkitten-co/giftcard/internal/codecs"
	"github.com/ripkitten-co/giftcard/query"
	"github.com/ripkitten-co/giftcard/readmodel"
	"github.com/ripkitten-co/giftcard/subscription"
)

// output writes command results as text or JSON lines.
type output struct {
	format string
	w      io.Writer
	codec  *codecs.JSONIterCodec
}

func newOutput(format string, w io.Writer) *output {
	return &output{format: format, w: w, codec: codecs.NewJSONIter()}
}

func (o *output) json(v any) error {
	data, err := o.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintf(o.w, "%s\n", data)
	return err
}

func (o *output) summaryLine(s readmodel.Summary) string {
	return fmt.Sprintf("%s\tinitial=%d\tremaining=%d\tversion=%d", s.ID, s.InitialValue, s.RemainingValue, s.Version)
}

func (o *output) summaries(rows []readmodel.Summary) error {
	if o.format == "json" {
		if rows == nil {
			rows = []readmodel.Summary{}
		}
		return o.json(rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(o.w, "no gift cards")
		return err
	}
	for _, s := range rows {
		if _, err := fmt.Fprintln(o.w, o.summaryLine(s)); err != nil {
			return err
		}
	}
	return nil
}

func (o *output) count(res query.CountResult) error {
	if o.format == "json" {
		return o.json(res)
	}
	_, err := fmt.Fprintf(o.w, "%d\t(as of %s)\n", res.Count, res.AsOf.UTC().Format(time.RFC3339))
	return err
}

type updateView struct {
	Subscription string             `json:"subscription"`
	Prefix       string             `json:"prefix"`
	Kind         string             `json:"kind"`
	Summary      *readmodel.Summary `json:"summary,omitempty"`
}

func (o *output) update(sub *subscription.Subscription, u subscription.Update) error {
	v := updateView{Subscription: sub.ID(), Prefix: sub.Filter().IDStartsWith}
	switch u.Kind {
	case subscription.UpdateSummary:
		v.Kind = "summary"
		v.Summary = &u.Summary
	case subscription.UpdateCountChanged:
		v.Kind = "countChanged"
	}

	if o.format == "json" {
		return o.json(v)
	}
	if v.Summary != nil {
		_, err := fmt.Fprintf(o.w, "[%s] %s\n", v.Prefix, o.summaryLine(*v.Summary))
		return err
	}
	_, err := fmt.Fprintf(o.w, "[%s] count changed\n", v.Prefix)
	return err
}
