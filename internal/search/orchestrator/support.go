package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/simpleflo/arabhybrid/internal/search/translate"
	"github.com/simpleflo/arabhybrid/internal/search/types"
)

const defaultGraphDeadline = 250 * time.Millisecond

// attachTranslations fills in ContentTranslation/Translation fields on every
// result, batching ayah and hadith lookups into one call each and merging
// book-page translations per result (each book page's translation HTML is
// a distinct fetch, so it can't be batched the same way).
func (o *Orchestrator) attachTranslations(ctx context.Context, params types.SearchParams, resp *Response) {
	if o.translator == nil {
		return
	}

	if params.Translations.QuranEdition != "" && len(resp.Ayahs) > 0 {
		keys := make([]translate.AyahKey, len(resp.Ayahs))
		for i, a := range resp.Ayahs {
			keys[i] = translate.AyahKey{Surah: a.SurahNumber, Ayah: a.AyahNumber}
		}
		translations, err := o.translator.MergeAyahTranslations(ctx, params.Translations.QuranEdition, keys)
		if err != nil {
			o.logger.Warn().Err(err).Msg("ayah translation merge failed")
		} else {
			for i, a := range resp.Ayahs {
				resp.Ayahs[i].Translation = translations[translate.AyahKey{Surah: a.SurahNumber, Ayah: a.AyahNumber}]
			}
		}
	}

	if params.Translations.HadithLanguage != "" && len(resp.Hadiths) > 0 {
		keys := make([]translate.HadithKey, len(resp.Hadiths))
		for i, h := range resp.Hadiths {
			keys[i] = translate.HadithKey{CollectionSlug: h.CollectionSlug, HadithNumber: h.HadithNumber}
		}
		translations, err := o.translator.MergeHadithTranslations(ctx, params.Translations.HadithLanguage, keys)
		if err != nil {
			o.logger.Warn().Err(err).Msg("hadith translation merge failed")
		} else {
			for i, h := range resp.Hadiths {
				resp.Hadiths[i].Translation = translations[translate.HadithKey{CollectionSlug: h.CollectionSlug, HadithNumber: h.HadithNumber}]
			}
		}
	}

	if params.Translations.BookLanguage != "" && len(resp.Books) > 0 {
		for i, b := range resp.Books {
			merged, err := o.translator.MergeBookPageTranslation(ctx, b.BookID, params.Translations.BookLanguage, b.PageNumber, b.TextSnippet)
			if err != nil {
				o.logger.Warn().Err(err).Str("book_id", b.BookID).Msg("book page translation merge failed")
				continue
			}
			resp.Books[i].ContentTranslation = merged
		}
	}
}

// attachGraphContext resolves related-ayah boosts for every ayah result
// concurrently, all sharing one deadline for the whole batch rather than
// each eating into a deadline left over by the one before it. A resolution
// failure for one ayah never affects the others - each call degrades
// independently to a zero-boost Context.
func (o *Orchestrator) attachGraphContext(ctx context.Context, ayahs []types.AyahRankedResult) []types.AyahRankedResult {
	if len(ayahs) == 0 {
		return ayahs
	}

	deadline := o.deadlines.Graph
	if deadline <= 0 {
		deadline = defaultGraphDeadline
	}
	graphCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(len(ayahs))
	for i := range ayahs {
		i := i
		go func() {
			defer wg.Done()
			gctx := o.graph.ResolveAyah(graphCtx, ayahs[i].SurahNumber, ayahs[i].AyahNumber)
			ayahs[i].RelatedAyahs = gctx.RelatedAyahs
			ayahs[i].FusedScore += gctx.ScoreBoost
		}()
	}
	wg.Wait()
	return ayahs
}
