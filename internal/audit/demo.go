package audit

import (
	"fmt"
	"math/rand"
)

var (
	demoRegions = []string{"华东", "华南", "华北", "西南", "华中"}
	demoCities  = map[string][]string{
		"华东": {"上海", "杭州", "南京", "苏州", "宁波"},
		"华南": {"广州", "深圳", "东莞", "佛山", "珠海"},
		"华北": {"北京", "天津", "石家庄", "济南", "青岛"},
		"西南": {"成都", "重庆", "昆明", "贵阳", "南宁"},
		"华中": {"武汉", "长沙", "郑州", "合肥", "南昌"},
	}
)

// DemoStores generates n deterministic store records with planted anomalies:
// stores 1-5 miss target badly, 6-10 are nearly sold out, 11-13 have zero
// sales, 14-16 have negative stock, 17-25 sell slowly and 31-35 have few
// active SKUs.
func DemoStores(n int) []map[string]interface{} {
	rng := rand.New(rand.NewSource(42))
	randint := func(lo, hi int) int { return lo + rng.Intn(hi-lo+1) }
	uniform := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

	stores := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		region := demoRegions[i%5]
		city := demoCities[region][i/10%5]

		target := randint(8000, 50000)
		var actual int
		switch {
		case i < 5:
			actual = int(float64(target) * uniform(0.25, 0.55))
		case i < 10:
			actual = int(float64(target) * uniform(0.90, 1.20))
		case i < 13:
			actual = 0
		case i < 16:
			actual = int(float64(target) * uniform(0.60, 0.90))
		default:
			actual = int(float64(target) * uniform(0.65, 1.15))
		}

		initial := randint(200, 800)
		var sold int
		switch {
		case i >= 5 && i < 10:
			sold = int(float64(initial) * uniform(0.88, 0.97))
		case i >= 16 && i < 25:
			sold = int(float64(initial) * uniform(0.05, 0.18))
		default:
			sold = int(float64(initial) * uniform(0.30, 0.75))
		}

		current := initial - sold
		if i >= 13 && i < 16 {
			current = randint(-50, -5)
		}

		totalSKU := randint(80, 200)
		var activeSKU int
		if i >= 30 && i < 35 {
			activeSKU = int(float64(totalSKU) * uniform(0.30, 0.55))
		} else {
			activeSKU = int(float64(totalSKU) * uniform(0.62, 0.92))
		}

		avgInventory := current * randint(80, 300)
		dailyCOGS := float64(actual) * 0.6 / 7
		if dailyCOGS < 1 {
			dailyCOGS = 1
		}

		stores = append(stores, map[string]interface{}{
			"门店名称":   fmt.Sprintf("%s%02d店", city, i+1),
			"区域":     region,
			"城市":     city,
			"目标销售额":  target,
			"实际销售额":  actual,
			"期初库存":   initial,
			"销售数量":   sold,
			"当前库存":   current,
			"上架天数":   randint(7, 30),
			"总SKU数":  totalSKU,
			"有销SKU数": activeSKU,
			"平均库存金额": avgInventory,
			"日均销售成本": dailyCOGS,
			"营业状态":   "营业",
		})
	}
	return stores
}
