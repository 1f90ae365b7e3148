package mpnn

import (
	"fmt"
	"log"

	"github.com/mfchem/mfchem/datasets"
)

// Train runs mini-batch gradient descent on the training set. When val is
// non-nil the validation loss is computed and logged after every epoch.
// Targets with NaN entries are treated as unlabeled and masked out of the
// loss.
func (m *Model) Train(train, val *datasets.MoleculeDataset) error {
	if train == nil || train.Len() == 0 {
		return fmt.Errorf("training set is empty")
	}
	n := train.Len()
	batchSize := m.Config.BatchSize
	opt := newOptimizer(m.Config)

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	for ep := 1; ep <= m.Config.Epochs; ep++ {
		m.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		var epochLoss float64
		var batches int
		for start := 0; start < n; start += batchSize {
			end := start + batchSize
			if end > n {
				end = n
			}
			batch, targets, features, err := train.Batch(indices[start:end])
			if err != nil {
				return err
			}

			preds, cache, err := m.forwardBatch(batch, features)
			if err != nil {
				return err
			}
			loss, dPreds := maskedMSE(preds, targets)
			epochLoss += loss
			batches++

			m.zeroGrad()
			m.backwardBatch(cache, dPreds)
			// the loss gradient is already averaged over labeled entries
			opt.step(m.params(), 1)
		}
		epochLoss /= float64(batches)

		if val != nil && val.Len() > 0 {
			valLoss, err := m.Loss(val)
			if err != nil {
				return err
			}
			log.Printf("[Train] epoch %d/%d: train loss %.6f, val loss %.6f", ep, m.Config.Epochs, epochLoss, valLoss)
		} else {
			log.Printf("[Train] epoch %d/%d: train loss %.6f", ep, m.Config.Epochs, epochLoss)
		}
	}
	return nil
}

// Loss computes the masked mean squared error over a dataset without
// updating the model.
func (m *Model) Loss(ds *datasets.MoleculeDataset) (float64, error) {
	n := ds.Len()
	if n == 0 {
		return 0, fmt.Errorf("dataset is empty")
	}
	batchSize := m.Config.BatchSize
	var total float64
	var batches int
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		indices := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}
		batch, targets, features, err := ds.Batch(indices)
		if err != nil {
			return 0, err
		}
		preds, _, err := m.forwardBatch(batch, features)
		if err != nil {
			return 0, err
		}
		loss, _ := maskedMSE(preds, targets)
		total += loss
		batches++
	}
	return total / float64(batches), nil
}
