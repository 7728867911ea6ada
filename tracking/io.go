package tracking

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// TracksFileHeader is the first line of a tracks file. Each following line is one tab separated
// observation: shot, track, feature id, x, y, scale, r, g, b, segmentation id, instance id.
const TracksFileHeader = "OPENSFM_TRACKS_VERSION_v2"

const tracksFileColumns = 11

// ReadTracks parses a tracks file. Files without the header are read as the headerless layout with
// only the first nine columns.
func ReadTracks(r io.Reader) (*TracksManager, error) {
	tm := NewTracksManager()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if line == 1 && strings.HasPrefix(text, "OPENSFM_TRACKS_VERSION") {
			if text != TracksFileHeader {
				return nil, errors.Errorf("unsupported tracks file version %q", text)
			}
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		shot, track, obs, err := parseObservation(text)
		if err != nil {
			return nil, errors.Wrapf(err, "tracks line %d", line)
		}
		tm.AddObservation(shot, track, obs)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading tracks")
	}
	return tm, nil
}

func parseObservation(text string) (string, string, Observation, error) {
	fields := strings.Split(text, "\t")
	if len(fields) != tracksFileColumns && len(fields) != tracksFileColumns-2 {
		return "", "", Observation{}, errors.Errorf("expected %d columns, got %d", tracksFileColumns, len(fields))
	}
	ints := make([]int, 0, 6)
	for _, i := range []int{2, 6, 7, 8} {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return "", "", Observation{}, errors.Wrapf(err, "column %d", i)
		}
		ints = append(ints, v)
	}
	floats := make([]float64, 0, 3)
	for _, i := range []int{3, 4, 5} {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return "", "", Observation{}, errors.Wrapf(err, "column %d", i)
		}
		floats = append(floats, v)
	}
	obs := NewObservation(floats[0], floats[1], floats[2], [3]int{ints[1], ints[2], ints[3]}, ints[0])
	if len(fields) == tracksFileColumns {
		var err error
		if obs.SegmentationID, err = strconv.Atoi(fields[9]); err != nil {
			return "", "", Observation{}, errors.Wrap(err, "column 9")
		}
		if obs.InstanceID, err = strconv.Atoi(fields[10]); err != nil {
			return "", "", Observation{}, errors.Wrap(err, "column 10")
		}
	}
	return fields[0], fields[1], obs, nil
}

// WriteTracks writes tm as a tracks file, shots and tracks in lexical order.
func WriteTracks(w io.Writer, tm *TracksManager) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, TracksFileHeader); err != nil {
		return err
	}
	for _, shot := range tm.ShotIDs() {
		observations := tm.ShotObservations(shot)
		tracks := lo.Keys(observations)
		sort.Strings(tracks)
		for _, track := range tracks {
			obs := observations[track]
			if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
				shot, track, obs.FeatureID,
				formatFloat(obs.Point.X), formatFloat(obs.Point.Y), formatFloat(obs.Scale),
				obs.Color[0], obs.Color[1], obs.Color[2],
				obs.SegmentationID, obs.InstanceID,
			); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
