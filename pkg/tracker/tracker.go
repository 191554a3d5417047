package tracker

import (
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/Robogera/detectdemo/pkg/detection"
	"github.com/Robogera/detectdemo/pkg/ghung"
	"github.com/Robogera/detectdemo/pkg/gmat"
)

// Minimal overlap for the second association stage
const low_match_iou = 0.5

// ByteTrack association: confident detections are matched against
// every track first, then the leftover tracks get a second chance with
// the low confidence detections. Ids start at 1 and are never reused
type Tracker struct {
	preset  Preset
	tracks  []*Track
	next_id int
	logger  *slog.Logger
}

func New(preset Preset, logger *slog.Logger) *Tracker {
	return &Tracker{
		preset:  preset,
		next_id: 1,
		logger:  logger.With("tracker", preset.TrackerType),
	}
}

// Returns boxes of the tracks matched or created on this frame
func (tr *Tracker) Update(boxes []detection.Box, t time.Time) []detection.Box {
	for _, track := range tr.tracks {
		if err := track.Predict(t); err != nil {
			tr.logger.Warn("Prediction failed", "error", err)
		}
	}

	var high, low []detection.Box
	for _, b := range boxes {
		switch c := float64(b.Confidence); {
		case c >= tr.preset.TrackHighThresh:
			high = append(high, b)
		case c > tr.preset.TrackLowThresh:
			low = append(low, b)
		}
	}

	out := make([]detection.Box, 0, len(boxes))
	matched_tracks := make(map[int]struct{}, len(tr.tracks))

	// first stage: every track vs confident detections
	first := tr.associate(tr.tracks, high, 1-tr.preset.MatchThresh, tr.preset.FuseScore, tr.preset.ProximityThresh)
	matched_high := make(map[int]struct{}, len(first))
	for track_ind, det_ind := range first {
		tr.update(tr.tracks[track_ind], t, high[det_ind], &out)
		matched_tracks[track_ind] = struct{}{}
		matched_high[det_ind] = struct{}{}
	}

	// second stage: still tracked leftovers vs weak detections
	var remaining []int
	for i, track := range tr.tracks {
		if _, ok := matched_tracks[i]; !ok && !track.Lost() {
			remaining = append(remaining, i)
		}
	}
	remaining_tracks := make([]*Track, len(remaining))
	for i, j := range remaining {
		remaining_tracks[i] = tr.tracks[j]
	}
	second := tr.associate(remaining_tracks, low, low_match_iou, false, 0)
	for ind, det_ind := range second {
		tr.update(remaining_tracks[ind], t, low[det_ind], &out)
		matched_tracks[remaining[ind]] = struct{}{}
	}

	kept := tr.tracks[:0]
	for i, track := range tr.tracks {
		if _, ok := matched_tracks[i]; !ok {
			track.markLost()
			if track.lost_frames > tr.preset.TrackBuffer {
				tr.logger.Debug("Track removed", "id", track.Id(), "hits", track.Hits())
				continue
			}
		}
		kept = append(kept, track)
	}
	tr.tracks = kept

	for i, b := range high {
		if _, ok := matched_high[i]; ok || float64(b.Confidence) < tr.preset.NewTrackThresh {
			continue
		}
		track := newTrack(tr.next_id, t, b)
		tr.next_id++
		tr.tracks = append(tr.tracks, track)
		b.TrackId = track.Id()
		out = append(out, b)
	}

	slices.SortFunc(out, func(a, b detection.Box) int { return a.TrackId - b.TrackId })
	return out
}

func (tr *Tracker) update(track *Track, t time.Time, b detection.Box, out *[]detection.Box) {
	if err := track.Update(t, b); err != nil {
		tr.logger.Warn("Update failed", "error", err)
	}
	b.TrackId = track.Id()
	*out = append(*out, b)
}

// Hungarian assignment maximizing the similarity. Pairs under min_similarity
// are dropped. Returns track index -> detection index
func (tr *Tracker) associate(tracks []*Track, boxes []detection.Box, min_similarity float64, fuse_score bool, proximity float64) map[int]int {
	matches := make(map[int]int)
	if len(tracks) == 0 || len(boxes) == 0 {
		return matches
	}
	sim := gmat.NewMat[float64](len(tracks), len(boxes))
	for r, track := range tracks {
		predicted := track.Box()
		for c, b := range boxes {
			iou := IoU(predicted, b)
			if proximity > 0 && 1-iou > proximity {
				continue
			}
			s := iou
			if fuse_score {
				s *= float64(b.Confidence)
			}
			sim.Set(r, c, s)
		}
	}
	for r, c := range ghung.Assign(sim, 0) {
		if sim.At(r, c) >= min_similarity {
			matches[r] = c
		}
	}
	return matches
}

func IoU(a, b detection.Box) float64 {
	ix := math.Min(a.X+a.W/2, b.X+b.W/2) - math.Max(a.X-a.W/2, b.X-b.W/2)
	iy := math.Min(a.Y+a.H/2, b.Y+b.H/2) - math.Max(a.Y-a.H/2, b.Y-b.H/2)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.W*a.H + b.W*b.H - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
