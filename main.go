// Copyright (C) 2022-2024 The bridgesan developers.
//
// This program is free software: you can redistribute it and/or modify it under
// the terms of the GNU Affero General Public License as published by the Free
// Software Foundation, version 3.

package main

import "github.com/bridgearchive/bridgesan/internal/cmd"

func main() {
	cmd.Main()
}
