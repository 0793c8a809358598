package posedb

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/wildtrace/posekit/internal/pose"
)

// VideoRef mirrors a label set's video entry for persistence.
type VideoRef struct {
	Path     string
	Height   int
	Width    int
	Channels int
}

// SavePredictions writes a prediction run — skeleton, videos, tracks and
// labeled frames — in a single transaction. The database becomes the
// toolkit's output artifact (default `<input>.predictions.db`).
func (db *DB) SavePredictions(skeleton *pose.Skeleton, videos []VideoRef, tracks []*pose.Track, frames []*pose.LabeledFrame) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("save predictions: %w", err)
	}
	defer tx.Rollback()

	for i, name := range skeleton.Nodes() {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO pose_skeleton_nodes (node_ind, name) VALUES (?, ?)`,
			i, name,
		); err != nil {
			return fmt.Errorf("save skeleton node %d: %w", i, err)
		}
	}
	for i, e := range skeleton.Edges() {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO pose_skeleton_edges (edge_ind, source_ind, dest_ind) VALUES (?, ?, ?)`,
			i, e.Source, e.Destination,
		); err != nil {
			return fmt.Errorf("save skeleton edge %d: %w", i, err)
		}
	}
	for i, v := range videos {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO pose_videos (video_ind, path, height, width, channels) VALUES (?, ?, ?, ?, ?)`,
			i, v.Path, v.Height, v.Width, v.Channels,
		); err != nil {
			return fmt.Errorf("save video %d: %w", i, err)
		}
	}
	for _, tr := range tracks {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO pose_tracks (track_id, name, first_frame, last_frame, length) VALUES (?, ?, ?, ?, ?)`,
			tr.ID, tr.Name, tr.FirstFrame, tr.LastFrame, tr.Len,
		); err != nil {
			return fmt.Errorf("save track %s: %w", tr.ID, err)
		}
	}

	for _, frame := range frames {
		// RETURNING yields the row id on both the insert and the conflict
		// path; LastInsertId is stale when the upsert hits an existing row.
		var frameID int64
		if err := tx.QueryRow(
			`INSERT INTO pose_frames (video_ind, frame_ind) VALUES (?, ?)
			 ON CONFLICT(video_ind, frame_ind) DO UPDATE SET video_ind = excluded.video_ind
			 RETURNING frame_id`,
			frame.VideoIndex, frame.FrameIndex,
		).Scan(&frameID); err != nil {
			return fmt.Errorf("save frame %d/%d: %w", frame.VideoIndex, frame.FrameIndex, err)
		}
		for _, inst := range frame.Instances {
			var trackID interface{}
			if inst.Track != nil {
				trackID = inst.Track.ID
			}
			res, err := tx.Exec(
				`INSERT INTO pose_instances (frame_id, score, grouped, track_id, tracking_score) VALUES (?, ?, ?, ?, ?)`,
				frameID, inst.Score, boolToInt(inst.Grouped), trackID, inst.TrackingScore,
			)
			if err != nil {
				return fmt.Errorf("save instance in frame %d/%d: %w", frame.VideoIndex, frame.FrameIndex, err)
			}
			instID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("instance insert id: %w", err)
			}
			for n, p := range inst.Points {
				x, y, score := sql.NullFloat64{}, sql.NullFloat64{}, sql.NullFloat64{}
				visible := 0
				if p.Visible() {
					x = sql.NullFloat64{Float64: p.X, Valid: true}
					y = sql.NullFloat64{Float64: p.Y, Valid: true}
					visible = 1
					if n < len(inst.Scores) && !math.IsNaN(inst.Scores[n]) {
						score = sql.NullFloat64{Float64: inst.Scores[n], Valid: true}
					}
				}
				if _, err := tx.Exec(
					`INSERT OR REPLACE INTO pose_points (instance_id, node_ind, x, y, score, visible) VALUES (?, ?, ?, ?, ?, ?)`,
					instID, n, x, y, score, visible,
				); err != nil {
					return fmt.Errorf("save point %d: %w", n, err)
				}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save predictions: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// LoadSkeleton reads the persisted skeleton back.
func (db *DB) LoadSkeleton() (*pose.Skeleton, error) {
	rows, err := db.Query(`SELECT name FROM pose_skeleton_nodes ORDER BY node_ind`)
	if err != nil {
		return nil, fmt.Errorf("load skeleton: %w", err)
	}
	defer rows.Close()
	var nodes []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("load skeleton: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load skeleton: %w", err)
	}

	erows, err := db.Query(`SELECT source_ind, dest_ind FROM pose_skeleton_edges ORDER BY edge_ind`)
	if err != nil {
		return nil, fmt.Errorf("load skeleton edges: %w", err)
	}
	defer erows.Close()
	var edges [][2]string
	for erows.Next() {
		var s, d int
		if err := erows.Scan(&s, &d); err != nil {
			return nil, fmt.Errorf("load skeleton edges: %w", err)
		}
		edges = append(edges, [2]string{nodes[s], nodes[d]})
	}
	if err := erows.Err(); err != nil {
		return nil, fmt.Errorf("load skeleton edges: %w", err)
	}
	return pose.NewSkeleton("", nodes, edges)
}

// LoadPredictions reads all labeled frames back, with tracks re-linked by
// identity. Frames are returned in (video_ind, frame_ind) order.
func (db *DB) LoadPredictions() ([]*pose.LabeledFrame, error) {
	skel, err := db.LoadSkeleton()
	if err != nil {
		return nil, err
	}

	tracks := map[string]*pose.Track{}
	trows, err := db.Query(`SELECT track_id, name, first_frame, last_frame, length FROM pose_tracks`)
	if err != nil {
		return nil, fmt.Errorf("load tracks: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		tr := &pose.Track{}
		if err := trows.Scan(&tr.ID, &tr.Name, &tr.FirstFrame, &tr.LastFrame, &tr.Len); err != nil {
			return nil, fmt.Errorf("load tracks: %w", err)
		}
		tracks[tr.ID] = tr
	}
	if err := trows.Err(); err != nil {
		return nil, fmt.Errorf("load tracks: %w", err)
	}

	rows, err := db.Query(`
		SELECT f.frame_id, f.video_ind, f.frame_ind,
		       i.instance_id, i.score, i.grouped, i.track_id, i.tracking_score,
		       p.node_ind, p.x, p.y, p.score, p.visible
		FROM pose_frames f
		JOIN pose_instances i ON i.frame_id = f.frame_id
		JOIN pose_points p ON p.instance_id = i.instance_id
		ORDER BY f.video_ind, f.frame_ind, i.instance_id, p.node_ind
	`)
	if err != nil {
		return nil, fmt.Errorf("load predictions: %w", err)
	}
	defer rows.Close()

	var frames []*pose.LabeledFrame
	var curFrame *pose.LabeledFrame
	var curFrameID, curInstID int64 = -1, -1
	var curInst *pose.Instance

	for rows.Next() {
		var frameID, instID int64
		var videoInd, frameInd, nodeInd, grouped, visible int
		var instScore, trackingScore float64
		var trackID sql.NullString
		var x, y, pscore sql.NullFloat64
		if err := rows.Scan(&frameID, &videoInd, &frameInd,
			&instID, &instScore, &grouped, &trackID, &trackingScore,
			&nodeInd, &x, &y, &pscore, &visible); err != nil {
			return nil, fmt.Errorf("load predictions: %w", err)
		}
		if frameID != curFrameID {
			curFrame = &pose.LabeledFrame{VideoIndex: videoInd, FrameIndex: frameInd}
			frames = append(frames, curFrame)
			curFrameID = frameID
			curInstID = -1
		}
		if instID != curInstID {
			curInst = pose.NewInstance(skel)
			curInst.Score = instScore
			curInst.Grouped = grouped != 0
			curInst.TrackingScore = trackingScore
			if trackID.Valid {
				curInst.Track = tracks[trackID.String]
			}
			curFrame.Instances = append(curFrame.Instances, curInst)
			curInstID = instID
		}
		if visible != 0 && x.Valid && y.Valid && nodeInd < skel.Len() {
			curInst.Points[nodeInd] = pose.Point{X: x.Float64, Y: y.Float64}
			if pscore.Valid {
				curInst.Scores[nodeInd] = pscore.Float64
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load predictions: %w", err)
	}
	return frames, nil
}

// FrameInstanceCounts returns (frame_ind, instance count) per frame for
// the report tools.
func (db *DB) FrameInstanceCounts() (frameInds []int, counts []int, err error) {
	rows, err := db.Query(`
		SELECT f.frame_ind, COUNT(i.instance_id)
		FROM pose_frames f
		LEFT JOIN pose_instances i ON i.frame_id = f.frame_id
		GROUP BY f.frame_id
		ORDER BY f.video_ind, f.frame_ind
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("frame instance counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fi, c int
		if err := rows.Scan(&fi, &c); err != nil {
			return nil, nil, fmt.Errorf("frame instance counts: %w", err)
		}
		frameInds = append(frameInds, fi)
		counts = append(counts, c)
	}
	return frameInds, counts, rows.Err()
}

// InstanceScores returns all instance scores, for score-distribution
// charts.
func (db *DB) InstanceScores() ([]float64, error) {
	rows, err := db.Query(`SELECT score FROM pose_instances ORDER BY instance_id`)
	if err != nil {
		return nil, fmt.Errorf("instance scores: %w", err)
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("instance scores: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// NodeDetectionRates returns, per skeleton node, the fraction of instances
// in which the node was detected.
func (db *DB) NodeDetectionRates() (names []string, rates []float64, err error) {
	rows, err := db.Query(`
		SELECT n.name, AVG(p.visible)
		FROM pose_skeleton_nodes n
		LEFT JOIN pose_points p ON p.node_ind = n.node_ind
		GROUP BY n.node_ind
		ORDER BY n.node_ind
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("node detection rates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var rate sql.NullFloat64
		if err := rows.Scan(&name, &rate); err != nil {
			return nil, nil, fmt.Errorf("node detection rates: %w", err)
		}
		names = append(names, name)
		rates = append(rates, rate.Float64)
	}
	return names, rates, rows.Err()
}

// TrackTrajectory is one track's centroid positions over frames, for the
// trajectory plot tool.
type TrackTrajectory struct {
	TrackID string
	Name    string
	Frames  []int
	X       []float64
	Y       []float64
}

// TrackTrajectories returns the mean visible point per instance for every
// tracked instance, grouped by track in first-frame order.
func (db *DB) TrackTrajectories() ([]*TrackTrajectory, error) {
	rows, err := db.Query(`
		SELECT t.track_id, t.name, f.frame_ind, AVG(p.x), AVG(p.y)
		FROM pose_tracks t
		JOIN pose_instances i ON i.track_id = t.track_id
		JOIN pose_frames f ON f.frame_id = i.frame_id
		JOIN pose_points p ON p.instance_id = i.instance_id AND p.visible = 1
		GROUP BY i.instance_id
		ORDER BY t.first_frame, t.track_id, f.video_ind, f.frame_ind
	`)
	if err != nil {
		return nil, fmt.Errorf("track trajectories: %w", err)
	}
	defer rows.Close()

	var out []*TrackTrajectory
	byID := map[string]*TrackTrajectory{}
	for rows.Next() {
		var id, name string
		var frameInd int
		var x, y sql.NullFloat64
		if err := rows.Scan(&id, &name, &frameInd, &x, &y); err != nil {
			return nil, fmt.Errorf("track trajectories: %w", err)
		}
		tt := byID[id]
		if tt == nil {
			tt = &TrackTrajectory{TrackID: id, Name: name}
			byID[id] = tt
			out = append(out, tt)
		}
		tt.Frames = append(tt.Frames, frameInd)
		tt.X = append(tt.X, x.Float64)
		tt.Y = append(tt.Y, y.Float64)
	}
	return out, rows.Err()
}
