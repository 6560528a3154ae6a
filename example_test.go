package tabflow_test

import (
	"fmt"

	tabflow "github.com/SimonWaldherr/tabflow"
)

func ExampleParseFormula() {
	f, err := tabflow.ParseFormula(`IF([price] > 100; "dear"; "cheap")`, tabflow.English())
	if err != nil {
		fmt.Println(err)
		return
	}
	row := tabflow.NewRow(
		[]tabflow.Column{tabflow.Col("price")},
		[]tabflow.Value{tabflow.NewInt(250)},
	)
	v := f.Apply(row, nil, tabflow.NewInvalid())
	fmt.Println(v.Text())
	// Output: dear
}

func ExampleFormula_Explain() {
	f, err := tabflow.ParseFormula("SUM(1;2;3)", tabflow.English())
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(f.Explain(tabflow.German()))
	// Output: SUMME(1;2;3)
}

func ExampleOptimize() {
	r, err := tabflow.NewRaster([]tabflow.Column{tabflow.Col("n")})
	if err != nil {
		fmt.Println(err)
		return
	}
	for i := int64(0); i < 10; i++ {
		r.AddRows([][]tabflow.Value{{tabflow.NewInt(i)}})
	}

	keep, err := tabflow.ParseFormula("[n] > 6", tabflow.English())
	if err != nil {
		fmt.Println(err)
		return
	}
	d := tabflow.FromRaster(r)
	d = tabflow.Filter(d, keep.Root)
	d = tabflow.Limit(d, 2)
	d = tabflow.Optimize(d)

	done := make(chan struct{})
	tabflow.ToRaster(d, tabflow.NewJob(tabflow.Background), func(out *tabflow.Raster, err error) {
		defer close(done)
		if err != nil {
			fmt.Println(err)
			return
		}
		for i := 0; i < out.RowCount(); i++ {
			fmt.Println(out.Cell(i, 0).Text())
		}
	})
	<-done
	// Output:
	// 7
	// 8
}

func ExampleFromSequence() {
	d, err := tabflow.FromSequence("[ab][01]", "code")
	if err != nil {
		fmt.Println(err)
		return
	}
	done := make(chan struct{})
	tabflow.ToRaster(d, tabflow.NewJob(tabflow.Background), func(out *tabflow.Raster, err error) {
		defer close(done)
		if err != nil {
			fmt.Println(err)
			return
		}
		for i := 0; i < out.RowCount(); i++ {
			fmt.Println(out.Cell(i, 0).Text())
		}
	})
	<-done
	// Output:
	// a0
	// a1
	// b0
	// b1
}
