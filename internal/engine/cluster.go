package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/stratumhq/stratum/internal/model"
)

// CreateCluster validates and persists a cluster, then computes its
// initial coherence from the members' embeddings.
func (e *Engine) CreateCluster(c *model.Cluster) error {
	if c.Name == "" {
		return model.Validationf("name", "cluster name is required")
	}
	if !model.ValidClusterTypes[c.Type] {
		return model.Validationf("type", "unknown cluster type %q", c.Type)
	}

	if err := e.DB.CreateCluster(c); err != nil {
		return err
	}
	if err := e.RecomputeCoherence(c.ID); err != nil {
		log.Printf("initial coherence for cluster %s: %v", c.ID, err)
		return nil
	}
	fresh, err := e.DB.GetCluster(c.ID)
	if err == nil {
		c.Coherence = fresh.Coherence
	}
	return nil
}

// GetCluster returns a cluster with its member id set.
func (e *Engine) GetCluster(id string) (*model.Cluster, error) {
	return e.DB.GetCluster(id)
}

// ClusterMemories returns the full memory records for a cluster's members.
func (e *Engine) ClusterMemories(id string) ([]model.Memory, error) {
	return e.DB.ClusterMemories(id)
}

// AddClusterMembers adds memories to a cluster and recomputes coherence.
func (e *Engine) AddClusterMembers(clusterID string, memberIDs []string) (*model.Cluster, error) {
	return e.changeMembers(clusterID, memberIDs, false)
}

// RemoveClusterMembers removes memories from a cluster and recomputes
// coherence.
func (e *Engine) RemoveClusterMembers(clusterID string, memberIDs []string) (*model.Cluster, error) {
	return e.changeMembers(clusterID, memberIDs, true)
}

func (e *Engine) changeMembers(clusterID string, memberIDs []string, remove bool) (*model.Cluster, error) {
	var err error
	if remove {
		err = e.DB.RemoveMembers(clusterID, memberIDs)
	} else {
		err = e.DB.AddMembers(clusterID, memberIDs)
	}
	if err != nil {
		return nil, err
	}
	if err := e.RecomputeCoherence(clusterID); err != nil {
		// Membership committed; stale coherence is caught by the next
		// refresh pass.
		log.Printf("recompute coherence for %s: %v", clusterID, err)
	}
	return e.DB.GetCluster(clusterID)
}

// RecomputeCoherence recalculates a cluster's coherence as the mean
// pairwise cosine similarity over the members' embeddings. Clusters with
// fewer than two embedded members are perfectly coherent by definition.
func (e *Engine) RecomputeCoherence(clusterID string) error {
	ids, err := e.DB.ClusterMemberIDs(clusterID)
	if err != nil {
		return err
	}

	vecs, err := e.DB.VectorsFor(ids)
	if err != nil {
		return fmt.Errorf("load member vectors: %w", err)
	}

	var embedded [][]float64
	for _, id := range ids {
		if v, ok := vecs[id]; ok {
			embedded = append(embedded, v)
		}
	}

	coherence := 1.0
	if len(embedded) >= 2 {
		var sum float64
		var pairs int
		for i := 0; i < len(embedded); i++ {
			for j := i + 1; j < len(embedded); j++ {
				sum += CosineSimilarity(embedded[i], embedded[j])
				pairs++
			}
		}
		coherence = sum / float64(pairs)
		if coherence < 0 {
			coherence = 0
		} else if coherence > 1 {
			coherence = 1
		}
	}

	return e.DB.SetCoherence(clusterID, coherence, time.Now())
}

// RefreshStaleCoherence recomputes coherence for every cluster whose
// membership changed since its score was last computed. Returns how many
// clusters were refreshed.
func (e *Engine) RefreshStaleCoherence() (int, error) {
	stale, err := e.DB.StaleCoherenceClusters()
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, id := range stale {
		if err := e.RecomputeCoherence(id); err != nil {
			log.Printf("refresh coherence for %s: %v", id, err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}
