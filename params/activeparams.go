// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package params

import "fmt"

// ActiveNetParams is a pointer to the parameters specific to the
// currently active network.
var ActiveNetParams = &MainNetParams

// ByName returns the parameters of the named network.
func ByName(name string) (*Params, error) {
	switch name {
	case MainNetParams.Name:
		return &MainNetParams, nil
	case TestNetParams.Name:
		return &TestNetParams, nil
	case PrivNetParams.Name:
		return &PrivNetParams, nil
	}
	return nil, fmt.Errorf("unknown network %q", name)
}
