package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
)

var (
	csvFile string
)

func main() {
	csvFilePtr := flag.String("csvFile", csvFile, "file written by gotidal taylor --csv")
	flag.Parse()
	csvFile = *csvFilePtr
	if len(csvFile) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	fmt.Printf("Input file: %v\n", csvFile)
	ts, err := readCSV(csvFile)
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
	order0, order1 := ts.Orders()
	fmt.Printf("h, r0, r1, order0, order1\n")
	for i := range ts.h {
		if i == 0 {
			fmt.Printf("%v, %v, %v\n", ts.h[i], ts.r0[i], ts.r1[i])
			continue
		}
		fmt.Printf("%v, %v, %v, %5.3f, %5.3f\n", ts.h[i], ts.r0[i], ts.r1[i], order0[i-1], order1[i-1])
	}
	fmt.Printf("Fitted order = %5.3f\n", ts.FittedOrder())
}

type TaylorStudy struct {
	h, r0, r1 []float64
}

func (ts *TaylorStudy) Add(h, r0, r1 float64) {
	ts.h = append(ts.h, h)
	ts.r0 = append(ts.r0, r0)
	ts.r1 = append(ts.r1, r1)
}

// Orders are the observed orders between consecutive step sizes, for any step ratio
func (ts *TaylorStudy) Orders() (order0, order1 []float64) {
	for i := 1; i < len(ts.h); i++ {
		ratio := math.Log(ts.h[i-1] / ts.h[i])
		order0 = append(order0, math.Log(ts.r0[i-1]/ts.r0[i])/ratio)
		order1 = append(order1, math.Log(ts.r1[i-1]/ts.r1[i])/ratio)
	}
	return
}

// FittedOrder is the least squares slope of log(r1) against log(h)
func (ts *TaylorStudy) FittedOrder() float64 {
	var (
		n                = float64(len(ts.h))
		sx, sy, sxx, sxy float64
	)
	for i := range ts.h {
		x, y := math.Log(ts.h[i]), math.Log(ts.r1[i])
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	return (n*sxy - sx*sy) / (n*sxx - sx*sx)
}

func readCSV(csvFile string) (ts *TaylorStudy, err error) {
	var (
		records   [][]string
		f         *os.File
		h, r0, r1 float64
	)
	if f, err = os.Open(csvFile); err != nil {
		return
	}
	defer f.Close()
	r := csv.NewReader(bufio.NewReader(f))
	if records, err = r.ReadAll(); err != nil {
		return
	}
	ts = &TaylorStudy{}
	for i, rec := range records {
		if i == 0 {
			continue
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("line %d: have %d columns, need h, r0, order0, r1", i+1, len(rec))
		}
		if h, err = strconv.ParseFloat(rec[0], 64); err != nil {
			return
		}
		if r0, err = strconv.ParseFloat(rec[1], 64); err != nil {
			return
		}
		if r1, err = strconv.ParseFloat(rec[3], 64); err != nil {
			return
		}
		ts.Add(h, r0, r1)
	}
	return
}
