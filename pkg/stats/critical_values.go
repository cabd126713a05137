package stats

// Significance 显著性水平
type Significance string

const (
	Significance1   Significance = "1%"
	Significance2_5 Significance = "2.5%"
	Significance5   Significance = "5%"
	Significance10  Significance = "10%"
)

// CriticalValues Dickey-Fuller 临界值表中的一行
type CriticalValues map[Significance]float64

type cvBucket struct {
	maxObs int // 样本数上限（含），最后一档为 0 表示无上限
	values [4]float64
}

// 标准 Dickey-Fuller 临界值，顺序 1%, 2.5%, 5%, 10%
var dickeyFullerTable = map[Model][]cvBucket{
	NoConstantNoTrend: {
		{25, [4]float64{-2.661, -2.273, -1.995, -1.609}},
		{50, [4]float64{-2.612, -2.246, -1.947, -1.612}},
		{100, [4]float64{-2.588, -2.234, -1.944, -1.614}},
		{250, [4]float64{-2.575, -2.227, -1.942, -1.616}},
		{500, [4]float64{-2.570, -2.224, -1.942, -1.616}},
		{0, [4]float64{-2.567, -2.223, -1.941, -1.616}},
	},
	ConstantNoTrend: {
		{25, [4]float64{-3.724, -3.318, -2.986, -2.633}},
		{50, [4]float64{-3.568, -3.213, -2.921, -2.599}},
		{100, [4]float64{-3.498, -3.164, -2.891, -2.582}},
		{250, [4]float64{-3.457, -3.136, -2.873, -2.573}},
		{500, [4]float64{-3.443, -3.127, -2.867, -2.570}},
		{0, [4]float64{-3.434, -3.120, -2.863, -2.568}},
	},
	ConstantTrend: {
		{25, [4]float64{-4.375, -3.943, -3.589, -3.238}},
		{50, [4]float64{-4.152, -3.791, -3.495, -3.181}},
		{100, [4]float64{-4.052, -3.722, -3.452, -3.153}},
		{250, [4]float64{-3.995, -3.683, -3.427, -3.137}},
		{500, [4]float64{-3.977, -3.670, -3.419, -3.132}},
		{0, [4]float64{-3.963, -3.660, -3.413, -3.128}},
	},
}

// GetCriticalValues 按样本数分档（≤25, ≤50, ≤100, ≤250, ≤500, >500）和检验模型查表
func GetCriticalValues(nobs int, model Model) CriticalValues {
	buckets, ok := dickeyFullerTable[model]
	if !ok {
		buckets = dickeyFullerTable[ConstantNoTrend]
	}

	row := buckets[len(buckets)-1]
	for _, b := range buckets {
		if b.maxObs != 0 && nobs <= b.maxObs {
			row = b
			break
		}
	}

	return CriticalValues{
		Significance1:   row.values[0],
		Significance2_5: row.values[1],
		Significance5:   row.values[2],
		Significance10:  row.values[3],
	}
}
