package kpistore

import "kpiboard/internal/status"

// RollupTask recomputes the task status from its weekly records.
func RollupTask(t *Task) {
	children := make([]status.Value, 0, len(t.Records))
	for _, r := range t.Records {
		children = append(children, r.Status)
	}
	t.Status = status.Derive(children)
}

// RollupActivity recomputes every task in the activity, then the activity itself.
func RollupActivity(a *Activity) {
	children := make([]status.Value, 0, len(a.Tasks))
	for i := range a.Tasks {
		RollupTask(&a.Tasks[i])
		children = append(children, a.Tasks[i].Status)
	}
	a.Status = status.Derive(children)
}

// RollupKPI recomputes the whole subtree of a KPI.
func RollupKPI(k *KPI) {
	children := make([]status.Value, 0, len(k.Activities))
	for i := range k.Activities {
		RollupActivity(&k.Activities[i])
		children = append(children, k.Activities[i].Status)
	}
	k.Status = status.Derive(children)
}

// Rollup recomputes every derived status in the collections in place.
func Rollup(collections []Collection) {
	for ci := range collections {
		for ki := range collections[ci].KPIs {
			RollupKPI(&collections[ci].KPIs[ki])
		}
	}
}
