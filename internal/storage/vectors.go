package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// encodeVector packs a []float64 as a BLOB, 8 little-endian bytes per value.
func encodeVector(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeVector unpacks a BLOB written by encodeVector.
func decodeVector(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveLatent stores or replaces an entity's latent vector for one model
// and cutoff date.
func (db *DB) SaveLatent(entityID, cutoffDate, modelName string, vec []float64) error {
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO latents(entity_id, cutoff_date, model_name, vector, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entityID, cutoffDate, modelName, encodeVector(vec), nowUTC())
	if err != nil {
		return fmt.Errorf("save latent %s@%s: %w", entityID, cutoffDate, err)
	}
	return nil
}

// GetLatent returns the stored latent vector for an entity, cutoff and
// model, or nil if none is stored.
func (db *DB) GetLatent(entityID, cutoffDate, modelName string) ([]float64, error) {
	var blob []byte
	err := db.conn.QueryRow(`
		SELECT vector FROM latents
		WHERE entity_id = ? AND cutoff_date = ? AND model_name = ?`,
		entityID, cutoffDate, modelName).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeVector(blob), nil
}

// LatestLatent returns an entity's most recent latent vector for a
// model along with its cutoff date, or ("", nil) if none is stored.
func (db *DB) LatestLatent(entityID, modelName string) (string, []float64, error) {
	var cutoff string
	var blob []byte
	err := db.conn.QueryRow(`
		SELECT cutoff_date, vector FROM latents
		WHERE entity_id = ? AND model_name = ?
		ORDER BY cutoff_date DESC LIMIT 1`,
		entityID, modelName).Scan(&cutoff, &blob)
	if err == sql.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return cutoff, decodeVector(blob), nil
}
