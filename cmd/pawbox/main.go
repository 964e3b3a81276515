// Command pawbox はPaw-BoxのWebサーバー、ワーカー、マイグレーションを起動する。
//
//	pawbox [serve|worker|migrate [up|down [n]|version]|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/pawbox/pawbox/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
