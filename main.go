/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "sunbird-adapter/cmd"

func main() {
	cmd.Execute()
}
